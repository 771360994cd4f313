package sandbox

// Validate compiles source against the built-in functions plus the given
// operation names without running anything. Used to reject broken
// generated code before a workflow is marked ready.
func Validate(source string, opNames []string) error {
	functions := builtins(&outputBuffer{})
	for _, name := range opNames {
		functions[name] = func(args ...interface{}) (interface{}, error) {
			return "", nil
		}
	}
	_, err := Compile(source, functions)
	return err
}
