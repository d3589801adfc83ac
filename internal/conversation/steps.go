package conversation

import (
	"strings"

	"github.com/hackgods/hospital-registration-agent/internal/booking"
	"github.com/hackgods/hospital-registration-agent/internal/extract"
	"github.com/hackgods/hospital-registration-agent/internal/session"
)

// rule tries to accept text into reg. The first rule returning true wins.
type rule func(m *Machine, reg *booking.Registration, text string) bool

type stepHandler struct {
	rules  []rule
	next   session.Step
	reject string
	prompt func(m *Machine, reg booking.Registration) string
}

func staticPrompt(s string) func(*Machine, booking.Registration) string {
	return func(*Machine, booking.Registration) string { return s }
}

// steps is the linear guided flow. REG_TIME has next == StepNone: it allocates.
var steps = map[session.Step]stepHandler{
	session.StepFirstName: {
		rules:  []rule{introducedName, literal(func(r *booking.Registration, v string) { r.FirstName = v })},
		next:   session.StepLastName,
		reject: msgNotUnderstood,
		prompt: staticPrompt(promptFirstName),
	},
	session.StepLastName: {
		rules: []rule{
			exact("-", func(r *booking.Registration) { r.LastName = "" }),
			literal(func(r *booking.Registration, v string) { r.LastName = v }),
		},
		next:   session.StepGender,
		reject: msgNotUnderstood,
		prompt: staticPrompt(promptLastName),
	},
	session.StepGender: {
		rules:  []rule{genderChoice, genderSynonym},
		next:   session.StepAddress,
		reject: msgNotUnderstood,
		prompt: staticPrompt(promptGender),
	},
	session.StepAddress: {
		rules: []rule{
			skipped(func(r *booking.Registration) { r.Address = "" }),
			literal(func(r *booking.Registration, v string) { r.Address = v }),
		},
		next:   session.StepEmail,
		reject: msgNotUnderstood,
		prompt: staticPrompt(promptAddress),
	},
	session.StepEmail: {
		rules:  []rule{skipped(func(r *booking.Registration) { r.Email = "" }), email},
		next:   session.StepPhone,
		reject: rejectEmail,
		prompt: staticPrompt(promptEmail),
	},
	session.StepPhone: {
		rules:  []rule{phone},
		next:   session.StepDepartment,
		reject: rejectPhone,
		prompt: staticPrompt(promptPhone),
	},
	session.StepDepartment: {
		rules:  []rule{departmentChoice, departmentName},
		next:   session.StepRegDate,
		reject: msgNotUnderstood,
		prompt: func(m *Machine, _ booking.Registration) string { return departmentPrompt(m.catalog) },
	},
	session.StepRegDate: {
		rules:  []rule{futureDate},
		next:   session.StepRegTime,
		reject: rejectDate,
		prompt: staticPrompt(promptDate),
	},
	session.StepRegTime: {
		rules:  []rule{timeChoice, timeMark, looseTime},
		next:   session.StepNone,
		reject: rejectTime,
		prompt: func(m *Machine, reg booking.Registration) string { return timePrompt(m.catalog, reg.Department) },
	},
}

func literal(set func(*booking.Registration, string)) rule {
	return func(_ *Machine, reg *booking.Registration, text string) bool {
		v := strings.TrimSpace(text)
		if v == "" {
			return false
		}
		set(reg, v)
		return true
	}
}

func exact(token string, set func(*booking.Registration)) rule {
	return func(_ *Machine, reg *booking.Registration, text string) bool {
		if strings.TrimSpace(text) != token {
			return false
		}
		set(reg)
		return true
	}
}

// skipped accepts "skip" or "-" for optional fields
func skipped(set func(*booking.Registration)) rule {
	return func(_ *Machine, reg *booking.Registration, text string) bool {
		if !isSkip(text) && strings.TrimSpace(text) != "-" {
			return false
		}
		set(reg)
		return true
	}
}

func introducedName(_ *Machine, reg *booking.Registration, text string) bool {
	first, _, ok := extract.Name(text)
	if !ok {
		return false
	}
	reg.FirstName = first
	return true
}

var genderChoices = []booking.Gender{booking.GenderMale, booking.GenderFemale, booking.GenderOther}

func genderChoice(_ *Machine, reg *booking.Registration, text string) bool {
	n, ok := extract.Choice(text, len(genderChoices))
	if !ok {
		return false
	}
	reg.Gender = genderChoices[n-1]
	return true
}

func genderSynonym(_ *Machine, reg *booking.Registration, text string) bool {
	g, ok := extract.Gender(text)
	if !ok {
		return false
	}
	reg.Gender = g
	return true
}

func email(_ *Machine, reg *booking.Registration, text string) bool {
	v, ok := extract.Email(text)
	if !ok {
		return false
	}
	reg.Email = v
	return true
}

func phone(_ *Machine, reg *booking.Registration, text string) bool {
	v, ok := extract.Phone(text)
	if !ok {
		return false
	}
	reg.Phone = v
	return true
}

func departmentChoice(m *Machine, reg *booking.Registration, text string) bool {
	names := m.catalog.Names()
	n, ok := extract.Choice(text, len(names))
	if !ok {
		return false
	}
	reg.Department = names[n-1]
	return true
}

func departmentName(m *Machine, reg *booking.Registration, text string) bool {
	v, ok := extract.Department(text, m.catalog.Names())
	if !ok {
		return false
	}
	reg.Department = v
	return true
}

func futureDate(m *Machine, reg *booking.Registration, text string) bool {
	d, ok := extract.Date(text, m.now())
	if !ok {
		return false
	}
	iso := d.Format(booking.DateLayout)
	if !m.isFuture(iso) {
		return false
	}
	reg.Date = iso
	return true
}

func timeChoice(m *Machine, reg *booking.Registration, text string) bool {
	marks := m.marks(reg.Department)
	n, ok := extract.Choice(text, len(marks))
	if !ok {
		return false
	}
	reg.Time = marks[n-1]
	return true
}

func timeMark(m *Machine, reg *booking.Registration, text string) bool {
	v := strings.TrimSpace(text)
	if len(v) == 4 && v[1] == ':' {
		v = "0" + v
	}
	for _, mark := range m.marks(reg.Department) {
		if v == mark {
			reg.Time = mark
			return true
		}
	}
	return false
}

func looseTime(m *Machine, reg *booking.Registration, text string) bool {
	// bare numbers are menu choices only
	if extract.IsNumeric(text) {
		return false
	}
	v, ok := extract.Time(text)
	if !ok {
		return false
	}
	for _, mark := range m.marks(reg.Department) {
		if v == mark {
			reg.Time = mark
			return true
		}
	}
	return false
}
