package bootstrap

import (
	"napolihr/model"
)

type RoleSeed struct {
	Name        string
	Tier        int
	Description string
}

type AccountSeed struct {
	Email string
	Name  string
	Role  string
}

// DefaultOrganization is the company every fresh database starts with.
func DefaultOrganization() model.Organization {
	prefix := "NAP"
	return model.Organization{
		Name:               "Napoli Property Inv Ltd",
		Code:               "NAP",
		EmployeeIDPrefix:   &prefix,
		RegistrationNumber: "ZMW/REG-1005/25",
		EmployeeCount:      0,
		Status:             model.ActiveOrganization,
	}
}

func DefaultRoles() []RoleSeed {
	return []RoleSeed{
		{Name: "admin", Tier: 1, Description: "Administrator"},
		{Name: "hr", Tier: 2, Description: "Human Resources"},
		{Name: "payroll", Tier: 3, Description: "Payroll"},
	}
}

func DefaultAccounts() []AccountSeed {
	return []AccountSeed{
		{Email: "super.admin@hrgroup.co.zm", Name: "Super Administrator", Role: "admin"},
		{Email: "hr.admin@hrgroup.co.zm", Name: "HR Administrator", Role: "hr"},
		{Email: "hr.payroll@hrgroup.co.zm", Name: "HR Payroll", Role: "payroll"},
	}
}
