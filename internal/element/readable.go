package element

import "fmt"

// errNoReader is returned by the Readable elements when SetReader hasn't
// been called yet, i.e. the controller session hasn't come Online.
func errNoReader(name string) error {
	return fmt.Errorf("element %q: not bound to a live controller reader", name)
}

func errNoWriter(name string) error {
	return fmt.Errorf("element %q: not bound to a live controller writer", name)
}
