package dto

// RegisterDTO is checked with utils.Validate rather than gin binding so
// every violation can be reported at once.
type RegisterDTO struct {
	FullName        string `json:"fullName" validate:"required,max=120"`
	Email           string `json:"email" validate:"required,email,max=254"`
	MatricNumber    string `json:"matricNumber" validate:"omitempty,max=32"`
	PhoneNumber     string `json:"phoneNumber" validate:"required,max=32"`
	Faculty         string `json:"faculty" validate:"omitempty,max=120"`
	Department      string `json:"department" validate:"omitempty,max=120"`
	Password        string `json:"password" validate:"required,strongpassword"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
}

type LoginDTO struct {
	EmailOrID string `json:"emailOrId" validate:"required"`
	Password  string `json:"password" validate:"required"`
}
