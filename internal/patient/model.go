package patient

import "time"

type Patient struct {
	ID                  string     `json:"id"`
	MedicalRecordNumber string     `json:"medicalRecordNumber"`
	FullName            string     `json:"fullName"`
	DateOfBirth         *time.Time `json:"dateOfBirth,omitempty"`
	Phone               string     `json:"phone"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

type Input struct {
	MedicalRecordNumber string     `json:"medicalRecordNumber"`
	FullName            string     `json:"fullName"`
	DateOfBirth         *time.Time `json:"dateOfBirth"`
	Phone               string     `json:"phone"`
}
