package source

func OverloadNewID(overload func() string) func() {
	newIDRef := newID
	newID = overload
	return func() { newID = newIDRef }
}
