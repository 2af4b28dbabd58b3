package detectors

import (
	"context"
	"strings"

	"github.com/ocx/sentinel/internal/blackboard"
	"github.com/ocx/sentinel/internal/orchestrator"
)

// knownScannerSignatures are user-agent substrings used by common security
// scanning tools. Matching one of these is strong bot evidence — these
// clients never claim to be anything other than a scanner.
var knownScannerSignatures = map[string]string{
	"nikto":       "Nikto",
	"sqlmap":      "sqlmap",
	"nmap":        "Nmap",
	"masscan":     "masscan",
	"zgrab":       "ZGrab",
	"gobuster":    "gobuster",
	"dirbuster":   "DirBuster",
	"nuclei":      "Nuclei",
	"burpsuite":   "Burp Suite",
	"acunetix":    "Acunetix",
	"qualys":      "Qualys",
	"shodan":      "Shodan",
	"censys":      "Censys",
	"zap":         "OWASP ZAP",
	"w3af":        "w3af",
	"metasploit":  "Metasploit",
}

// SecurityToolDetector flags traffic from known vulnerability scanners and
// penetration-testing tools by user-agent signature.
type SecurityToolDetector struct{}

func (SecurityToolDetector) Run(ctx context.Context, bb *blackboard.Context, params map[string]string) (orchestrator.Outcome, error) {
	ua := strings.ToLower(bb.Fingerprint.UserAgent)

	toolName := ""
	for needle, name := range knownScannerSignatures {
		if strings.Contains(ua, needle) {
			toolName = name
			break
		}
	}

	_ = bb.Publish("detection.securitytool.is_known_scanner", blackboard.BoolSignal(toolName != ""))
	_ = bb.Publish("detection.securitytool.tool_name", blackboard.StrSignal(toolName))

	if toolName != "" {
		return orchestrator.Outcome{BotScore: 1.0}, nil
	}
	return orchestrator.Outcome{}, nil
}
