package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Date is a calendar day that accepts "2006-01-02" as well as RFC 3339 input.
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format(dateLayout))
}

func (d *Date) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		d.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	t, err := ParseDate(s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// ParseDate reads either a bare date or a full RFC 3339 timestamp.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// ProfileData is implemented by each role-specific profile variant.
type ProfileData interface {
	UserType() UserType
}

type PregnancyProfile struct {
	DueDate             *Date    `json:"dueDate,omitempty"`
	LastMenstrualPeriod *Date    `json:"lastMenstrualPeriod,omitempty"`
	CurrentWeek         int      `json:"currentWeek,omitempty" validate:"omitempty,min=1,max=42"`
	Trimester           int      `json:"trimester,omitempty" validate:"omitempty,min=1,max=3"`
	IsHighRisk          bool     `json:"isHighRisk"`
	Complications       []string `json:"complications,omitempty"`
	PreviousPregnancies int      `json:"previousPregnancies" validate:"min=0"`
}

func (PregnancyProfile) UserType() UserType { return UserTypePregnant }

type MotherProfile struct {
	BabyBirthDate   *Date  `json:"babyBirthDate,omitempty"`
	BabyName        string `json:"babyName,omitempty"`
	BabyGender      string `json:"babyGender,omitempty" validate:"omitempty,oneof=male female other prefer_not_to_say"`
	FeedingType     string `json:"feedingType,omitempty" validate:"omitempty,oneof=breastfeeding formula mixed"`
	DeliveryType    string `json:"deliveryType,omitempty" validate:"omitempty,oneof=vaginal cesarean assisted"`
	PostpartumWeeks int    `json:"postpartumWeeks,omitempty" validate:"min=0"`
}

func (MotherProfile) UserType() UserType { return UserTypeNewMother }

type Address struct {
	Street     string `json:"street,omitempty"`
	City       string `json:"city,omitempty"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
}

type OpeningHours struct {
	Open  string `json:"open"`
	Close string `json:"close"`
}

type HospitalProfile struct {
	HospitalName   string                  `json:"hospitalName,omitempty"`
	LicenseNumber  string                  `json:"licenseNumber,omitempty"`
	Address        Address                 `json:"address"`
	Services       []string                `json:"services,omitempty"`
	Specialties    []string                `json:"specialties,omitempty"`
	OperatingHours map[string]OpeningHours `json:"operatingHours,omitempty"`
	IsVerified     bool                    `json:"isVerified"`
}

func (HospitalProfile) UserType() UserType { return UserTypeHospital }

type TimeSlot struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type ConsultationFee struct {
	Amount   float64 `json:"amount" validate:"min=0"`
	Currency string  `json:"currency"`
}

type PractitionerProfile struct {
	Title               string                `json:"title,omitempty" validate:"omitempty,oneof=Dr Nurse Midwife Specialist Other"`
	Specialty           string                `json:"specialty,omitempty"`
	LicenseNumber       string                `json:"licenseNumber,omitempty"`
	YearsOfExperience   int                   `json:"yearsOfExperience,omitempty" validate:"min=0"`
	Qualifications      []string              `json:"qualifications,omitempty"`
	HospitalAffiliation string                `json:"hospitalAffiliation,omitempty"`
	ConsultationFee     *ConsultationFee      `json:"consultationFee,omitempty"`
	AvailableHours      map[string][]TimeSlot `json:"availableHours,omitempty"`
	IsVerified          bool                  `json:"isVerified"`
}

func (PractitionerProfile) UserType() UserType { return UserTypePractitioner }

// RoleProfile holds exactly one profile variant. The variant always matches
// the user type it was built for; there is no way to attach a hospital
// profile to a pregnant account.
type RoleProfile struct {
	data ProfileData
}

// NewRoleProfile decodes raw into the variant selected by t. An empty raw
// value yields the zero profile for that role.
func NewRoleProfile(t UserType, raw json.RawMessage) (RoleProfile, error) {
	var data ProfileData
	switch t {
	case UserTypePregnant:
		p := PregnancyProfile{}
		if err := decodeProfile(raw, &p); err != nil {
			return RoleProfile{}, err
		}
		data = p
	case UserTypeNewMother:
		p := MotherProfile{FeedingType: "breastfeeding"}
		if err := decodeProfile(raw, &p); err != nil {
			return RoleProfile{}, err
		}
		data = p
	case UserTypeHospital:
		p := HospitalProfile{}
		if err := decodeProfile(raw, &p); err != nil {
			return RoleProfile{}, err
		}
		data = p
	case UserTypePractitioner:
		p := PractitionerProfile{}
		if err := decodeProfile(raw, &p); err != nil {
			return RoleProfile{}, err
		}
		if p.ConsultationFee != nil && p.ConsultationFee.Currency == "" {
			p.ConsultationFee.Currency = "GHS"
		}
		data = p
	default:
		return RoleProfile{}, fmt.Errorf("unknown user type %q", t)
	}
	return RoleProfile{data: data}, nil
}

func decodeProfile(raw json.RawMessage, dst any) error {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// Kind returns the user type of the held variant, or "" when empty.
func (p RoleProfile) Kind() UserType {
	if p.data == nil {
		return ""
	}
	return p.data.UserType()
}

// Data returns the held variant.
func (p RoleProfile) Data() ProfileData {
	return p.data
}

func (p RoleProfile) Pregnancy() (PregnancyProfile, bool) {
	v, ok := p.data.(PregnancyProfile)
	return v, ok
}

func (p RoleProfile) Mother() (MotherProfile, bool) {
	v, ok := p.data.(MotherProfile)
	return v, ok
}

func (p RoleProfile) Hospital() (HospitalProfile, bool) {
	v, ok := p.data.(HospitalProfile)
	return v, ok
}

func (p RoleProfile) Practitioner() (PractitionerProfile, bool) {
	v, ok := p.data.(PractitionerProfile)
	return v, ok
}

type profileEnvelope struct {
	Type UserType        `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (p RoleProfile) MarshalJSON() ([]byte, error) {
	if p.data == nil {
		return []byte("null"), nil
	}
	body, err := json.Marshal(p.data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(profileEnvelope{Type: p.data.UserType(), Data: body})
}

func (p *RoleProfile) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		p.data = nil
		return nil
	}
	var env profileEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	decoded, err := NewRoleProfile(env.Type, env.Data)
	if err != nil {
		return err
	}
	*p = decoded
	return nil
}

// Value stores the profile as its JSON envelope.
func (p RoleProfile) Value() (driver.Value, error) {
	if p.data == nil {
		return nil, nil
	}
	b, err := p.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan reads the JSON envelope written by Value.
func (p *RoleProfile) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		p.data = nil
		return nil
	case []byte:
		return p.UnmarshalJSON(v)
	case string:
		return p.UnmarshalJSON([]byte(v))
	default:
		return fmt.Errorf("role profile: unsupported column type %T", src)
	}
}
