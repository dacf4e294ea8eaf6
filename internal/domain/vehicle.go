package domain

import (
	"fmt"
	"strings"
)

// Drivetrain is the normalized drive configuration of a vehicle. The zero
// value means the drivetrain is absent from the source record.
type Drivetrain string

const (
	Drivetrain2WD     Drivetrain = "2WD"
	DrivetrainFWD     Drivetrain = "FWD"
	DrivetrainRWD     Drivetrain = "RWD"
	DrivetrainAWD     Drivetrain = "AWD"
	Drivetrain4WD     Drivetrain = "4WD"
	DrivetrainUnknown Drivetrain = "UNKNOWN"
)

// IsTwoWheel reports whether the drivetrain only drives one axle.
func (d Drivetrain) IsTwoWheel() bool {
	return d == Drivetrain2WD || d == DrivetrainFWD || d == DrivetrainRWD
}

// IsAllWheel reports whether the drivetrain drives both axles.
func (d Drivetrain) IsAllWheel() bool {
	return d == DrivetrainAWD || d == Drivetrain4WD
}

// VehicleIdentity is the comparable identity of a vehicle derived once from a
// raw record. String fields are uppercase; nil pointers mean unknown.
type VehicleIdentity struct {
	Make       string
	Model      string
	Variant    string
	Drivetrain Drivetrain
	Year       *int
	Km         *int
}

// Summary renders a short "2019 TOYOTA HILUX SR5" style description.
func (v VehicleIdentity) Summary() string {
	parts := make([]string, 0, 4)
	if v.Year != nil {
		parts = append(parts, fmt.Sprintf("%d", *v.Year))
	}
	for _, s := range []string{v.Make, v.Model, v.Variant} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}
