package conversation

import "regexp"

// Whole-message intents. Anything longer falls through to field extraction.
var (
	greetingPattern = regexp.MustCompile(`(?i)^\s*(?:hi+|hello|hey|hiya|hola|namaste|greetings|help|menu|good\s+(?:morning|afternoon|evening))[\s!.,]*$`)
	resetPattern    = regexp.MustCompile(`(?i)^\s*(?:reset|cancel|restart|start\s+over)[\s!.]*$`)
	startPattern    = regexp.MustCompile(`(?i)^\s*1\s*$|\b(?:register|registration|book|booking|appointment|new\s+patient|sign\s*up|start)\b`)
	yesPattern      = regexp.MustCompile(`(?i)^\s*(?:yes|y|yeah|yep|confirm|ok|okay)[\s!.]*$`)
	noPattern       = regexp.MustCompile(`(?i)^\s*(?:no|n|nope)[\s!.]*$`)
	skipPattern     = regexp.MustCompile(`(?i)^\s*skip\s*$`)
)

func isGreeting(text string) bool { return greetingPattern.MatchString(text) }
func isReset(text string) bool    { return resetPattern.MatchString(text) }
func isStart(text string) bool    { return startPattern.MatchString(text) }
func isYes(text string) bool      { return yesPattern.MatchString(text) }
func isNo(text string) bool       { return noPattern.MatchString(text) }
func isSkip(text string) bool     { return skipPattern.MatchString(text) }
