package conversation

import (
	"fmt"
	"strings"

	"github.com/hackgods/hospital-registration-agent/internal/booking"
)

const (
	msgWelcome = "Welcome to the hospital registration desk.\n" +
		"1. Register for an appointment\n" +
		"Or send everything at once, e.g. \"I am Priya, phone +919876543210, cardiology tomorrow 10am\"."
	msgGuidance = "I can help you register for an appointment. Reply 1 or \"register\" to start, " +
		"or send your name, phone, department, date and time in one message."
	msgCancelled      = "Registration cancelled. Send \"register\" whenever you want to start again."
	msgSessionReset   = "Something went wrong with your registration, so the session was reset. Send \"register\" to start again."
	msgFailure        = "Sorry, we could not complete that right now. Please try again in a moment."
	msgSlotBusy       = "That slot is being booked by someone else right now. Please send your time again."
	msgSingleShotFail = "Sorry, we could not book that appointment"
	msgNotUnderstood  = "Sorry, I didn't understand that."

	promptFirstName = "Please enter your first name."
	promptLastName  = "Please enter your last name (send - if you have none)."
	promptGender    = "Please choose your gender:\n1. Male\n2. Female\n3. Other"
	promptAddress   = "Please enter your address (or send skip)."
	promptEmail     = "Please enter your email address (or send skip)."
	promptPhone     = "Please enter your phone number (10 to 14 digits, optional +)."
	promptDate      = "Please enter your preferred date (YYYY-MM-DD, or e.g. tomorrow)."
	promptConfirm   = "Reply yes to confirm or no to cancel."

	rejectPhone = "That doesn't look like a valid phone number."
	rejectEmail = "That doesn't look like a valid email address."
	rejectDate  = "Please choose a future date."
	rejectTime  = "Please pick one of the listed times."
)

func numberedList(header string, items []string) string {
	var b strings.Builder
	b.WriteString(header)
	for i, item := range items {
		fmt.Fprintf(&b, "\n%d. %s", i+1, item)
	}
	return b.String()
}

func departmentPrompt(catalog *booking.Catalog) string {
	return numberedList("Please choose a department:", catalog.Names())
}

func timePrompt(catalog *booking.Catalog, department string) string {
	dept, ok := catalog.Lookup(department)
	if !ok {
		return rejectTime
	}
	return numberedList(fmt.Sprintf("Please choose a time for %s:", department), dept.HourlyMarks())
}

func confirmation(p *booking.Patient) string {
	reg := p.Registration
	return fmt.Sprintf("Registration confirmed!\nPatient ID: %s\nName: %s\nDepartment: %s\nDate: %s\nTime: %s",
		p.ID, reg.FullName(), reg.Department, reg.Date, reg.Time)
}

func summary(reg booking.Registration) string {
	return fmt.Sprintf("Please confirm your appointment:\nName: %s\nDepartment: %s\nDate: %s\nTime: %s\n%s",
		reg.FullName(), reg.Department, reg.Date, reg.Time, promptConfirm)
}

func slotFull(reg booking.Registration) string {
	return fmt.Sprintf("%s on %s at %s is fully booked.", reg.Department, reg.Date, reg.Time)
}
