package feed

import "fmt"

// FetchError reports a transport failure or non-success status for a source.
type FetchError struct {
	Source Source
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch %s: %v", e.Source.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ParseError reports a body that could not be read as a feed document.
type ParseError struct {
	Source Source
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %s: %v", e.Source.URL, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ConfigError is fatal: the source list is missing or malformed.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("invalid feed configuration: %v", e.Err)
	}
	return fmt.Sprintf("invalid feed configuration %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
