package models

import (
	"time"
)

// UserType selects which role profile an account carries.
type UserType string

const (
	UserTypePregnant     UserType = "pregnant"
	UserTypeNewMother    UserType = "new_mother"
	UserTypeHospital     UserType = "hospital"
	UserTypePractitioner UserType = "practitioner"
)

// Valid reports whether t is one of the four supported roles.
func (t UserType) Valid() bool {
	switch t {
	case UserTypePregnant, UserTypeNewMother, UserTypeHospital, UserTypePractitioner:
		return true
	}
	return false
}

// AccountStatus is the lifecycle state of an account.
type AccountStatus string

const (
	StatusPendingVerification AccountStatus = "pending_verification"
	StatusActive              AccountStatus = "active"
	StatusInactive            AccountStatus = "inactive"
	StatusSuspended           AccountStatus = "suspended"
)

// User is the persisted account record.
//
// The verification and password-reset digests are always written and cleared
// together with their expiry column.
type User struct {
	BaseModel
	FirstName      string        `gorm:"size:50;not null" json:"firstName"`
	LastName       string        `gorm:"size:50;not null" json:"lastName"`
	Email          string        `gorm:"size:254;uniqueIndex;not null" json:"email"`
	Phone          string        `gorm:"size:16;not null" json:"phone"`
	PasswordDigest string        `gorm:"column:password_digest;not null" json:"-"`
	UserType       UserType      `gorm:"size:32;index;not null" json:"userType"`
	Status         AccountStatus `gorm:"size:32;index;not null;default:pending_verification" json:"status"`
	EmailVerified  bool          `gorm:"not null;default:false" json:"emailVerified"`

	EmailVerificationTokenDigest *string    `gorm:"size:64;index" json:"-"`
	EmailVerificationExpiresAt   *time.Time `json:"-"`
	PasswordResetTokenDigest     *string    `gorm:"size:64;index" json:"-"`
	PasswordResetExpiresAt       *time.Time `json:"-"`
	// PasswordChangedAt is an audit stamp. Sessions are stateless and are not
	// checked against it, so tokens issued before a reset stay valid until
	// they expire.
	PasswordChangedAt *time.Time `json:"-"`

	LastLoginAt *time.Time `json:"lastLogin,omitempty"`
	LoginCount  int64      `gorm:"not null;default:0" json:"loginCount"`

	DateOfBirth    *time.Time  `json:"dateOfBirth,omitempty"`
	ProfilePicture *string     `json:"profilePicture"`
	Location       Location    `gorm:"serializer:json;type:text" json:"location"`
	Preferences    Preferences `gorm:"serializer:json;type:text" json:"preferences"`
	Profile        RoleProfile `gorm:"type:text" json:"profile"`
}

// FullName joins first and last name.
func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// Location is where the account holder is based.
type Location struct {
	City        string       `json:"city,omitempty"`
	Region      string       `json:"region,omitempty"`
	Country     string       `json:"country,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}

type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Preferences holds language, notification and privacy choices.
type Preferences struct {
	Language      string               `json:"language" validate:"required,oneof=en tw ak ga ee"`
	Notifications NotificationSettings `json:"notifications"`
	Privacy       PrivacySettings      `json:"privacy"`
}

type NotificationSettings struct {
	Email bool `json:"email"`
	SMS   bool `json:"sms"`
	Push  bool `json:"push"`
}

type PrivacySettings struct {
	ProfileVisibility    string `json:"profileVisibility" validate:"required,oneof=public private friends_only"`
	ShareDataForResearch bool   `json:"shareDataForResearch"`
}

// DefaultPreferences returns the settings new accounts start with.
func DefaultPreferences() Preferences {
	return Preferences{
		Language:      "en",
		Notifications: NotificationSettings{Email: true, SMS: true, Push: true},
		Privacy:       PrivacySettings{ProfileVisibility: "private"},
	}
}

// DefaultCountry fills in the country when a location omits it.
const DefaultCountry = "Ghana"
