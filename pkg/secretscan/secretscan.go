// Package secretscan detects secret-like content in evidence artifacts
// before it can leave the tenant boundary. Findings block export outright
// rather than warn.
package secretscan

import "regexp"

// PatternType identifies the category of secret detected.
type PatternType string

const (
	PatternPrivateKey PatternType = "PRIVATE_KEY"
	PatternAWSKey     PatternType = "AWS_ACCESS_KEY"
	PatternGitHubPAT  PatternType = "GITHUB_PAT"
	PatternOpenAIKey  PatternType = "OPENAI_KEY"
	PatternJWT        PatternType = "JWT"
	PatternSlackToken PatternType = "SLACK_TOKEN"
	PatternGCPKey     PatternType = "GCP_API_KEY"
	PatternCredKV     PatternType = "CREDENTIAL_ASSIGNMENT"
)

// Finding is one secret-like match. Value is intentionally not captured;
// a finding that leaks the secret it found defeats the purpose.
type Finding struct {
	Type   PatternType
	Offset int
}

type pattern struct {
	typ PatternType
	re  *regexp.Regexp
}

var patterns = []pattern{
	{PatternPrivateKey, regexp.MustCompile(`(?i)-----BEGIN\s+(?:RSA\s+|EC\s+|OPENSSH\s+)?PRIVATE\s+KEY-----`)},
	{PatternAWSKey, regexp.MustCompile(`AKIA[0-9A-Z]{16}`)},
	{PatternGitHubPAT, regexp.MustCompile(`ghp_[A-Za-z0-9_]{36}`)},
	{PatternOpenAIKey, regexp.MustCompile(`sk-[A-Za-z0-9]{48}`)},
	{PatternJWT, regexp.MustCompile(`eyJ[A-Za-z0-9_-]+\.eyJ[A-Za-z0-9_-]+`)},
	{PatternSlackToken, regexp.MustCompile(`xox[bprs]-[0-9]+-[A-Za-z0-9]+`)},
	{PatternGCPKey, regexp.MustCompile(`AIza[0-9A-Za-z_-]{35}`)},
	{PatternCredKV, regexp.MustCompile(`(?i)(?:password|passwd|secret|api_key|apikey)[ \t]*[=:][ \t]*[^\s"']{8,}`)},
}

// Scan returns every secret-like match in content, one finding per
// pattern occurrence, ordered by position.
func Scan(content []byte) []Finding {
	var findings []Finding
	for _, p := range patterns {
		for _, loc := range p.re.FindAllIndex(content, -1) {
			findings = append(findings, Finding{Type: p.typ, Offset: loc[0]})
		}
	}
	return findings
}

// Clean reports whether content carries no secret-like patterns.
func Clean(content []byte) bool {
	for _, p := range patterns {
		if p.re.Match(content) {
			return false
		}
	}
	return true
}
