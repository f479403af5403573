package domain

// Patient 病人档案（对应 patients 表）
// Auto-provisioned on first device registration that names an unknown
// patient id; never deleted by this service.
type Patient struct {
	PatientID        string  `db:"patient_id"`         // TEXT, PK (external id)
	PatientName      string  `db:"patient_name"`       // TEXT, NOT NULL
	DOB              *string `db:"dob"`                // TEXT, nullable
	AssignedDoctorID *string `db:"assigned_doctor_id"` // TEXT, nullable
}
