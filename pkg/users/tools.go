package users

import (
	"context"
	"fmt"

	"github.com/oslianyabel/basic-wa-bot/pkg/toolexecutor"
)

func userFieldsSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"name": map[string]interface{}{
				"type":        "string",
				"description": "Nombre del usuario",
			},
			"telegram_id": map[string]interface{}{
				"type":        "string",
				"description": "id de telegram del usuario",
			},
			"email": map[string]interface{}{
				"type":        "string",
				"description": "Email del usuario",
			},
		},
		"required": []interface{}{"email"},
	}
}

// Tools returns the registry tools. Handlers expect the caller's phone under
// the "phone" argument.
func Tools(store *Store) []toolexecutor.Tool {
	return []toolexecutor.Tool{
		{
			Name:        "user_register",
			Description: "Registra un usuario en el sistema",
			Parameters:  userFieldsSchema(),
			Handler:     store.registerHandler,
		},
		{
			Name:        "user_check",
			Description: "Comprueba si un usuario existe en el sistema a partir de su email",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"email": map[string]interface{}{"type": "string", "description": "Email del usuario"},
				},
				"required": []interface{}{"email"},
			},
			Handler: store.checkHandler,
		},
		{
			Name:        "fast_user_check",
			Description: "Comprueba si un usuario existe en el sistema sin verificar el email",
			Parameters:  map[string]interface{}{"type": "object", "properties": map[string]interface{}{}},
			Handler:     store.fastCheckHandler,
		},
		{
			Name:        "set_user_data",
			Description: "Actualiza la información de un usuario",
			Parameters:  userFieldsSchema(),
			Handler:     store.setDataHandler,
		},
	}
}

// RegisterTools adds the registry tools to reg
func RegisterTools(reg *toolexecutor.Registry, store *Store) error {
	for _, tool := range Tools(store) {
		if err := reg.Register(tool); err != nil {
			return fmt.Errorf("failed to register %s: %w", tool.Name, err)
		}
	}
	return nil
}

func stringArg(args map[string]interface{}, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func userFromArgs(args map[string]interface{}) User {
	return User{
		Email:      stringArg(args, "email"),
		Phone:      stringArg(args, "phone"),
		TelegramID: stringArg(args, "telegram_id"),
		Name:       stringArg(args, "name"),
	}
}

func (s *Store) registerHandler(ctx context.Context, args map[string]interface{}) (string, error) {
	u := userFromArgs(args)
	created, err := s.Register(u)
	if err != nil {
		return "", err
	}
	if !created {
		return fmt.Sprintf("El usuario con email %s ya está registrado", u.Email), nil
	}
	s.logger.Info().Str("email", u.Email).Msg("User registered")
	return fmt.Sprintf("Usuario %s registrado exitosamente", u.Email), nil
}

func (s *Store) checkHandler(ctx context.Context, args map[string]interface{}) (string, error) {
	return s.check(stringArg(args, "phone"), stringArg(args, "email"))
}

func (s *Store) fastCheckHandler(ctx context.Context, args map[string]interface{}) (string, error) {
	return s.check(stringArg(args, "phone"), "")
}

func (s *Store) check(phone, email string) (string, error) {
	result, err := s.Check(phone, email)
	if err != nil {
		return "", err
	}

	switch result {
	case PhoneRegistered:
		return fmt.Sprintf("El usuario con el telefono %s ya está registrado", phone), nil
	case EmailLinked:
		return fmt.Sprintf("El usuario con email %s ya estaba registrado. Se le ha asignado su numero de telefono", email), nil
	default:
		return fmt.Sprintf("El usuario con el telefono %s y el email %s no está registrado", phone, email), nil
	}
}

func (s *Store) setDataHandler(ctx context.Context, args map[string]interface{}) (string, error) {
	u := userFromArgs(args)
	found, err := s.Update(u.Email, u)
	if err != nil {
		return "", err
	}
	if !found {
		return fmt.Sprintf("El usuario con email %s no está registrado", u.Email), nil
	}
	return "Datos actualizados", nil
}
