package auth

import (
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

type LoginRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, 320), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(1, 100)),
	)
}

type RegisterRequest struct {
	Email       string   `json:"email"`
	Name        string   `json:"name"`
	LastName    string   `json:"lastName"`
	Password    string   `json:"password"`
	PhoneNumber string   `json:"phoneNumber"`
	State       string   `json:"state,omitempty"`
	Roles       []string `json:"roles,omitempty"`
}

func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, 320), is.Email),
		validation.Field(&r.Name, validation.Required, validation.Length(1, 120)),
		validation.Field(&r.LastName, validation.Length(0, 120)),
		validation.Field(&r.Password, validation.Required, validation.Length(6, 100), validation.By(passwordBytes)),
		validation.Field(&r.PhoneNumber, validation.Length(0, 32)),
		validation.Field(&r.State, validation.In("", "AVAILABLE", "BUSY", "UNAVAILABLE")),
		validation.Field(&r.Roles, validation.By(uuidList)),
	)
}

// Message converts the request into a registration command
func (r RegisterRequest) Message() (RegisterUserMessage, error) {
	roles := make([]uuid.UUID, 0, len(r.Roles))
	for i, raw := range r.Roles {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			return RegisterUserMessage{}, validationError(validation.Errors{
				"roles": fmt.Errorf("item %d: must be a valid UUID", i),
			})
		}
		roles = append(roles, id)
	}
	return RegisterUserMessage{
		Email:    r.Email,
		Name:     r.Name,
		LastName: r.LastName,
		Password: r.Password,
		Phone:    r.PhoneNumber,
		State:    strings.ToUpper(strings.TrimSpace(r.State)),
		Roles:    roles,
	}, nil
}

type RoleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func (r RoleRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 64)),
		validation.Field(&r.Description, validation.Length(0, 255)),
	)
}

type AssignRoleRequest struct {
	RoleID string `json:"roleId"`
}

func (r AssignRoleRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RoleID, validation.Required, is.UUID),
	)
}

type StateRequest struct {
	State string `json:"state"`
}

func (r StateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.State, validation.Required, validation.In("AVAILABLE", "BUSY", "UNAVAILABLE")),
	)
}

func passwordBytes(value any) error {
	pw, _ := value.(string)
	if len(pw) > MaxPasswordBytes {
		return fmt.Errorf("must be at most %d bytes", MaxPasswordBytes)
	}
	return nil
}

func uuidList(value any) error {
	ids, _ := value.([]string)
	for i, raw := range ids {
		raw = strings.TrimSpace(raw)
		if err := validation.Validate(raw, validation.Required, is.UUID); err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
	}
	return nil
}

// validationError turns ozzo errors into a 400 with the field messages
func validationError(err error) error {
	fields := map[string]string{}
	if verrs, ok := err.(validation.Errors); ok {
		for field, ferr := range verrs {
			fields[field] = ferr.Error()
		}
	} else {
		fields["_"] = err.Error()
	}
	return errors.New("request payload is not valid", errors.CategoryValidation).
		WithCode(errors.CodeBadRequest).
		WithTextCode("invalid_payload").
		WithMetadata(map[string]any{"fields": fields})
}
