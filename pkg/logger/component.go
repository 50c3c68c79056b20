package logger

// ComponentLogger is a logger bound to a component name. Nested scopes are
// joined with "." so that "dedupe" -> "dedupe.sweep" reads as a path.
type ComponentLogger struct {
	component string
	fields    map[string]any
}

func Component(name string) *ComponentLogger {
	return &ComponentLogger{component: name}
}

// Name returns the full component path.
func (c *ComponentLogger) Name() string {
	return c.component
}

// Sub returns a child logger scoped under this component.
func (c *ComponentLogger) Sub(name string) *ComponentLogger {
	child := &ComponentLogger{component: name, fields: c.fields}
	if c.component != "" {
		child.component = c.component + "." + name
	}
	return child
}

// With returns a logger that adds the given fields to every entry.
func (c *ComponentLogger) With(fields map[string]any) *ComponentLogger {
	merged := make(map[string]any, len(c.fields)+len(fields))
	for k, v := range c.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &ComponentLogger{component: c.component, fields: merged}
}

func (c *ComponentLogger) merge(fields map[string]any) map[string]any {
	if len(c.fields) == 0 {
		return fields
	}
	if len(fields) == 0 {
		return c.fields
	}
	out := make(map[string]any, len(c.fields)+len(fields))
	for k, v := range c.fields {
		out[k] = v
	}
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func (c *ComponentLogger) Debug(message string, fields map[string]any) {
	logMessage(DEBUG, c.component, message, c.merge(fields))
}

func (c *ComponentLogger) Info(message string, fields map[string]any) {
	logMessage(INFO, c.component, message, c.merge(fields))
}

func (c *ComponentLogger) Warn(message string, fields map[string]any) {
	logMessage(WARN, c.component, message, c.merge(fields))
}

func (c *ComponentLogger) Error(message string, fields map[string]any) {
	logMessage(ERROR, c.component, message, c.merge(fields))
}
