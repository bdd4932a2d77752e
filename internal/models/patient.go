package models

// PatientProfile profile document stored at patients/{identity}
type PatientProfile struct {
	PatientName   string `json:"patientName"`
	Email         string `json:"email,omitempty"`
	Disease       string `json:"disease"`
	GuardianName  string `json:"guardianName"`
	GuardianPhone string `json:"guardianPhone"`
	CreatedAt     string `json:"createdAt,omitempty"`
}
