package classify

// ErrorContext is the sanitized context attached to an error record.
// The typed variants are safe by construction: their Fields output
// contains nothing sensitive. Fields (the free-form variant) is run
// through the denylist sanitizer instead.
type ErrorContext interface {
	Fields() map[string]any
}

// NetworkContext describes a failed transport call.
type NetworkContext struct {
	URL    string
	Method string
}

func (c NetworkContext) Fields() map[string]any {
	return map[string]any{"url": c.URL, "method": c.Method}
}

// ValidationContext describes a rejected input.
type ValidationContext struct {
	Field      string
	Constraint string
}

func (c ValidationContext) Fields() map[string]any {
	return map[string]any{"field": c.Field, "constraint": c.Constraint}
}

// AuthContext carries a user identifier; it is hashed before it ever
// leaves this type.
type AuthContext struct {
	UserID string
}

func (c AuthContext) Fields() map[string]any {
	if c.UserID == "" {
		return nil
	}
	return map[string]any{"userId": HashUserID(c.UserID)}
}

// HashedUserID returns the one-way hash stored on the record.
func (c AuthContext) HashedUserID() string {
	if c.UserID == "" {
		return ""
	}
	return HashUserID(c.UserID)
}

// StorageContext describes a persistent store operation.
type StorageContext struct {
	Key string
	Op  string
}

func (c StorageContext) Fields() map[string]any {
	return map[string]any{"key": c.Key, "op": c.Op}
}

// Fields is the free-form context variant. Its values go through the
// denylist sanitizer and user-ID hashing on the way out.
type Fields map[string]any

func (f Fields) Fields() map[string]any {
	return SanitizeMap(f)
}
