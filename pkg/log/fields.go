package log

import (
	"go.uber.org/zap"
)

const (
	FieldNameModule    = "module"
	FieldNameComponent = "component"
)

// FieldModule returns a zap field carrying the module name.
func FieldModule(module string) zap.Field {
	return zap.String(FieldNameModule, module)
}

// FieldComponent returns a zap field carrying the component name.
func FieldComponent(component string) zap.Field {
	return zap.String(FieldNameComponent, component)
}

// FieldSession returns a zap field carrying a session id.
func FieldSession(id uint64) zap.Field {
	return zap.Uint64("session_id", id)
}

// FieldRoom returns a zap field carrying a room id.
func FieldRoom(roomID string) zap.Field {
	return zap.String("room_id", roomID)
}

// FieldWorld returns a zap field carrying a world name.
func FieldWorld(world string) zap.Field {
	return zap.String("world", world)
}

// FieldSpace returns a zap field carrying a qualified space name.
func FieldSpace(name string) zap.Field {
	return zap.String("space", name)
}

// FieldOp returns a zap field carrying a wire protocol op code.
func FieldOp(op uint32) zap.Field {
	return zap.Uint32("op", op)
}
