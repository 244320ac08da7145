package resource

// Matcher matches resource expressions against resources.
type Matcher interface {
	IsMatch(Name) bool
}

// TypeMatcher matches every resource of a type, e.g. all components.
type TypeMatcher struct {
	Type string
}

// IsMatch returns true when the name's type matches.
func (tm TypeMatcher) IsMatch(name Name) bool {
	return name.API.Type == tm.Type
}

// APIMatcher matches every resource of an API, e.g. all cameras.
type APIMatcher struct {
	API API
}

// IsMatch returns true when the name's API matches.
func (am APIMatcher) IsMatch(name Name) bool {
	return name.API == am.API
}
