package rules

// catalog is the ordered rule list.  Order is stable so repeated runs over
// the same events produce findings in the same relative order before the
// final severity sort.
var catalog = []Rule{
	{
		ID:         "db_connection_failure",
		Title:      "Database connection failures",
		Severity:   "HIGH",
		Confidence: 0.85,
		patterns: compile([]string{
			`\bconnection refused\b`,
			`\beconnrefused\b`,
			`\bno route to host\b`,
			`\btimeout acquiring connection\b`,
			`\bconnection timed out\b`,
			`\btoo many connections\b`,
		}),
	},
	{
		ID:         "db_auth_failure",
		Title:      "Database authentication/permission errors",
		Severity:   "HIGH",
		Confidence: 0.80,
		patterns: compile([]string{
			`\bpassword authentication failed\b`,
			`\bauthentication failed\b`,
			`\baccess denied for user\b`,
			`\bpermission denied\b`,
			`\brole .* does not exist\b`,
		}),
	},
	{
		ID:         "http_rate_limited",
		Title:      "Rate limiting (HTTP 429 / too many requests)",
		Severity:   "MED",
		Confidence: 0.80,
		patterns: compile([]string{
			`\b429\b`,
			`\btoo many requests\b`,
			`\brate limit(ed|ing)?\b`,
			`\bthrottl(ed|ing)\b`,
		}),
	},
	{
		ID:         "auth_token_expired",
		Title:      "Auth token/session expired",
		Severity:   "MED",
		Confidence: 0.75,
		patterns: compile([]string{
			`\bjwt expired\b`,
			`\btoken expired\b`,
			`\bsession expired\b`,
			`\bexpired signature\b`,
		}),
	},
	{
		ID:         "invalid_credentials",
		Title:      "Invalid credentials / login failures",
		Severity:   "MED",
		Confidence: 0.70,
		patterns: compile([]string{
			`\binvalid credentials\b`,
			`\blogin failed\b`,
			`\bwrong password\b`,
			`\bunauthorized\b`,
			`\b401\b`,
		}),
	},
	{
		ID:         "oom_memory",
		Title:      "Out of memory / heap exhaustion",
		Severity:   "CRIT",
		Confidence: 0.90,
		patterns: compile([]string{
			`\bout of memory\b`,
			`\boomed\b`,
			`\bjava\.lang\.outofmemoryerror\b`,
			`\bcannot allocate memory\b`,
			`\bmalloc\(\) failed\b`,
			`\bheap space\b`,
			`\bkilled process .* out of memory\b`,
		}),
	},
	{
		ID:         "disk_full",
		Title:      "Disk full / no space left",
		Severity:   "HIGH",
		Confidence: 0.85,
		patterns: compile([]string{
			`\bno space left on device\b`,
			`\bdisk quota exceeded\b`,
			`\bfilesystem is full\b`,
			`\benospc\b`,
		}),
	},
	{
		ID:         "tls_cert_failure",
		Title:      "TLS/SSL handshake or certificate failures",
		Severity:   "HIGH",
		Confidence: 0.80,
		patterns: compile([]string{
			`\bcertificate verify failed\b`,
			`\bself[- ]signed certificate\b`,
			`\bssl handshake failed\b`,
			`\btls handshake failed\b`,
			`\bunknown ca\b`,
			`\bcertificate has expired\b`,
		}),
	},
	{
		ID:         "upstream_timeout",
		Title:      "Upstream timeouts / gateway errors",
		Severity:   "HIGH",
		Confidence: 0.78,
		patterns: compile([]string{
			`\b504\b`,
			`\bgateway timeout\b`,
			`\bupstream timed out\b`,
			`\brequest timeout\b`,
			`\betimedout\b`,
		}),
	},
	{
		ID:         "payment_failure",
		Title:      "Payment/charge failures",
		Severity:   "HIGH",
		Confidence: 0.70,
		patterns: compile([]string{
			`\bpayment failed\b`,
			`\bcharge (declined|failed)\b`,
			`\binsufficient funds\b`,
			`\bcard declined\b`,
			`\bdo not honor\b`,
		}),
	},
}

// genericPatterns catch broad error language for events that no specific
// rule claimed.
var genericPatterns = compile([]string{
	`\bpanic\b`,
	`\bfail(ed|ure)?\b`,
	`\bexception\b`,
	`\bcritical\b`,
	`\bsegmentation fault\b`,
	`\bcore dumped\b`,
	`\bstack trace\b`,
	`\btraceback\b`,
	`\bunhandled\b`,
	`\bunexpected\b`,
	`\bfatal\b`,
	`\bsegfault\b`,
	`\bshutdown\b`,
	`\bcrash(es|ed)?\b`,
	`\bdeadlock\b`,
	`\btimeout\b`,
	`\bcorrupted\b`,
	`\bdata loss\b`,
})
