package element

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypePredicates(t *testing.T) {
	physical := []Type{TypeMotor, TypeCounterTimer, TypeZeroD, TypeOneD, TypeTwoD, TypeCommunication, TypeIORegister}
	for _, typ := range physical {
		assert.True(t, typ.IsPhysical(), "%s should be physical", typ)
		assert.False(t, typ.IsPseudo())
		assert.False(t, typ.IsGroup())
	}

	assert.True(t, TypePseudoMotor.IsPseudo())
	assert.True(t, TypePseudoCounter.IsPseudo())
	assert.True(t, TypeMotorGroup.IsGroup())
	assert.True(t, TypeMeasurementGroup.IsGroup())
	assert.False(t, TypeInstrument.IsPhysical())
	assert.False(t, TypeController.IsGroup())
}

func TestNameMatchesCaseInsensitive(t *testing.T) {
	b := NewBase(1, "Theta01", TypeMotor)
	assert.True(t, b.NameMatches("theta01"))
	assert.True(t, b.NameMatches("THETA01"))
	assert.False(t, b.NameMatches("theta02"))
}

func TestSetStateReportsChange(t *testing.T) {
	b := NewBase(1, "mot01", TypeMotor)
	old, changed := b.SetState(StateOn)
	assert.Equal(t, StateUnknown, old)
	assert.True(t, changed)

	_, changed = b.SetState(StateOn)
	assert.False(t, changed)
}

func TestMotorCalcMove(t *testing.T) {
	m := NewMotor(7, "mot01", 3, 1)
	targets, err := m.CalcMove([]float64{4.2})
	require.NoError(t, err)
	assert.Equal(t, 4.2, targets[3][7])

	_, err = m.CalcMove([]float64{1, 2})
	require.Error(t, err)
}

func TestMovingThreadRegistration(t *testing.T) {
	m := NewMotor(1, "mot01", 1, 1)
	_, active := m.MovingThread()
	assert.False(t, active)

	m.RegisterMovingThread(42)
	id, active := m.MovingThread()
	assert.True(t, active)
	assert.EqualValues(t, 42, id)

	m.ClearMovingThread()
	_, active = m.MovingThread()
	assert.False(t, active)
}

func TestIORegisterPredefinedValues(t *testing.T) {
	r := NewIORegister(1, "ior01", 1, 1)
	var wrote int64 = -1
	r.Bind(func() (int64, error) { return wrote, nil }, func(v int64) error { wrote = v; return nil })
	r.SetPredefinedValues(map[string]int64{"OPEN": 1, "CLOSED": 0})

	require.NoError(t, r.WriteLabel("OPEN"))
	v, err := r.ReadOne()
	require.NoError(t, err)
	assert.EqualValues(t, 1, v)

	require.Error(t, r.WriteLabel("HALF"))
}

func TestExtraAttributesReset(t *testing.T) {
	var e ExtraAttributes
	e.SetExtraAttribute("Velocity", 1.5)
	v, ok := e.ExtraAttribute("Velocity")
	require.True(t, ok)
	assert.Equal(t, 1.5, v)

	e.ResetExtraAttributes()
	_, ok = e.ExtraAttribute("Velocity")
	assert.False(t, ok)
}
