package simulated

import "openprotect-lab/internal/domain/models"

type alertTemplate struct {
	severity    models.Severity
	title       string
	description string
	fields      map[string]any
	device      models.Device
	context     models.AlertContext
	mitre       *models.MitreMapping
}

var (
	ctxFinancialUS   = models.AlertContext{Industry: "Financial", Country: "USA", Continent: "North America", Region: "NA-East"}
	ctxFinancialCA   = models.AlertContext{Industry: "Financial", Country: "Canada", Continent: "North America", Region: "NA-East"}
	ctxGovernmentDE  = models.AlertContext{Industry: "Government", Country: "Germany", Continent: "Europe", Region: "EU-Central"}
	ctxHealthcareUK  = models.AlertContext{Industry: "Healthcare", Country: "UK", Continent: "Europe", Region: "EU-West"}
	ctxRetailUS      = models.AlertContext{Industry: "Retail", Country: "USA", Continent: "North America", Region: "NA-West"}
	ctxManufacturing = models.AlertContext{Industry: "Manufacturing", Country: "Japan", Continent: "Asia", Region: "APAC"}
)

var alertCatalog = []alertTemplate{
	{
		severity:    models.SeverityCritical,
		title:       "Ransomware Behavior Detected",
		description: "Multiple files encrypted in rapid succession on host.",
		fields:      map[string]any{"process": "svchost.exe", "file_count": 1024, "pattern": "mass_encryption.fast"},
		device:      models.Device{Type: "Desktop", OS: "Windows", Hostname: "FINANCE-PC-01", IPAddress: "10.10.4.21", AgentVersion: "3.1.4"},
		context:     ctxFinancialUS,
		mitre:       &models.MitreMapping{Tactic: "Impact", Technique: "Data Encrypted for Impact", ID: "T1486"},
	},
	{
		severity:    models.SeverityHigh,
		title:       "Potential Credential Dumping",
		description: "LSASS process memory accessed by a non-system process.",
		fields:      map[string]any{"process": "mimikatz.exe", "target_process": "lsass.exe"},
		device:      models.Device{Type: "Server", OS: "Windows", Hostname: "DC-01", IPAddress: "10.20.0.5", AgentVersion: "3.1.4"},
		context:     ctxGovernmentDE,
		mitre:       &models.MitreMapping{Tactic: "Credential Access", Technique: "OS Credential Dumping", ID: "T1003"},
	},
	{
		severity:    models.SeverityMedium,
		title:       "Anomalous Network Connection",
		description: "Outbound connection to a known malicious IP address.",
		fields:      map[string]any{"process": "powershell.exe", "destination_ip": "104.21.5.19", "port": 4444},
		device:      models.Device{Type: "Desktop", OS: "Windows", Hostname: "HR-PC-22", IPAddress: "10.30.2.14", AgentVersion: "3.0.9"},
		context:     ctxHealthcareUK,
		mitre:       &models.MitreMapping{Tactic: "Command and Control", Technique: "Non-Standard Port", ID: "T1571"},
	},
	{
		severity:    models.SeverityCritical,
		title:       "In-Memory Threat Detected",
		description: "YARA rule matched for Cobalt Strike beacon in memory.",
		fields: map[string]any{
			"process":        "rundll32.exe",
			"memory_address": "0x00007FFD7A4E0000-0x00007FFD7A4F0000",
			"signature":      "CobaltStrike_Beacon_Generic",
		},
		device:  models.Device{Type: "Server", OS: "Windows", Hostname: "WEBSRV-03", IPAddress: "10.40.1.3", AgentVersion: "3.1.4"},
		context: ctxRetailUS,
		mitre:   &models.MitreMapping{Tactic: "Defense Evasion", Technique: "Process Injection", ID: "T1055"},
	},
	{
		severity:    models.SeverityHigh,
		title:       "Weak Password Usage",
		description: "User logged in to a critical application with a weak password.",
		fields: map[string]any{
			"application":       "Salesforce",
			"username":          "amanda.b",
			"password_strength": "weak",
			"source_ip":         "203.0.113.55",
		},
		device:  models.Device{Type: "Laptop", OS: "macOS", Hostname: "amanda-macbook", IPAddress: "10.40.7.88", AgentVersion: "3.1.2"},
		context: ctxRetailUS,
		mitre:   &models.MitreMapping{Tactic: "Credential Access", Technique: "Brute Force", ID: "T1110"},
	},
	{
		severity:    models.SeverityMedium,
		title:       "Anomalous Database Query",
		description: "A non-standard process is querying the customer PII table.",
		fields: map[string]any{
			"process":    "python3",
			"user":       "db_admin_backup",
			"query_hash": "a1b2c3d4",
			"database":   "customer_prod",
		},
		device:  models.Device{Type: "Server", OS: "Linux", Hostname: "db-primary-pg", IPAddress: "10.40.9.10", AgentVersion: "3.1.4"},
		context: ctxRetailUS,
		mitre:   &models.MitreMapping{Tactic: "Collection", Technique: "Data from Information Repositories", ID: "T1213"},
	},
	{
		severity:    models.SeverityHigh,
		title:       "Mobile Phishing Link Access",
		description: "User clicked on a known phishing URL from a corporate mobile device.",
		fields:      map[string]any{"url": "http://login.microsoft.com.security-update.xyz", "browser": "Chrome Mobile"},
		device:      models.Device{Type: "Mobile", OS: "Android", Hostname: "samsung-sm-g998u", IPAddress: "10.11.3.201", AgentVersion: "2.9.0"},
		context:     ctxFinancialCA,
		mitre:       &models.MitreMapping{Tactic: "Initial Access", Technique: "Phishing", ID: "T1566"},
	},
	{
		severity:    models.SeverityMedium,
		title:       "Anomalous IoT Traffic",
		description: "IoT camera initiated an outbound SSH connection.",
		fields:      map[string]any{"protocol": "SSH", "destination_ip": "198.51.100.8", "port": 22},
		device:      models.Device{Type: "IoT Device", OS: "Embedded Linux", Hostname: "CAM-LOBBY-04", IPAddress: "10.50.0.44", AgentVersion: "2.4.1"},
		context:     ctxManufacturing,
		mitre:       &models.MitreMapping{Tactic: "Lateral Movement", Technique: "Remote Services: SSH", ID: "T1021.004"},
	},
	{
		severity:    models.SeverityHigh,
		title:       "Cloud Metadata API Abuse",
		description: "Suspicious access to instance metadata service from a container.",
		fields: map[string]any{
			"source_ip":  "169.254.169.254",
			"user_agent": "curl/7.64.0",
			"path":       "/latest/meta-data/iam/security-credentials/",
		},
		device:  models.Device{Type: "Cloud VM", OS: "Ubuntu", Hostname: "prod-runner-x86-abcd", IPAddress: "172.31.18.6", AgentVersion: "3.1.4"},
		context: ctxRetailUS,
		mitre:   &models.MitreMapping{Tactic: "Credential Access", Technique: "Cloud Instance Metadata API", ID: "T1552.005"},
	},
	{
		severity:    models.SeverityCritical,
		title:       "Container Escape Attempt",
		description: "Process in container created a file in a sensitive host path.",
		fields:      map[string]any{"container_id": "c3a4b1d", "process": "exploit.sh", "host_path": "/proc/sys/kernel/core_pattern"},
		device:      models.Device{Type: "Container", OS: "Linux", Hostname: "k8s-node-42", IPAddress: "10.20.8.42", AgentVersion: "3.1.4"},
		context:     ctxGovernmentDE,
		mitre:       &models.MitreMapping{Tactic: "Privilege Escalation", Technique: "Escape to Host", ID: "T1611"},
	},
}

var intelCatalog = []models.LearningUpdate{
	{
		Source:  "NVD/EPSS",
		Summary: "New high-severity vulnerability in Apache Struts (CVE-2023-50164). EPSS score: 92.5%.",
		VulnerabilityDetails: &models.VulnerabilityDetails{
			CVEID:            "CVE-2023-50164",
			CVSSScore:        9.8,
			AffectedSoftware: []string{"Apache Struts 2.x"},
			AdvisoryLink:     "https://nvd.nist.gov/vuln/detail/CVE-2023-50164",
		},
	},
	{
		Source:  "VirusTotal",
		Summary: "File hash 275a021b analyzed: 68/71 vendors flagged as LockBit 3.0 ransomware.",
	},
	{
		Source:  "Exploit-DB",
		Summary: "Public exploit code published for VMware vCenter Server bug (CVE-2023-34048).",
		VulnerabilityDetails: &models.VulnerabilityDetails{
			CVEID:            "CVE-2023-34048",
			CVSSScore:        9.8,
			AffectedSoftware: []string{"VMware vCenter Server"},
			AdvisoryLink:     "https://www.exploit-db.com/exploits/51869",
		},
	},
	{
		Source:  "OSV",
		Summary: "Vulnerability in popular NPM package jsonwebtoken allows remote code execution.",
		VulnerabilityDetails: &models.VulnerabilityDetails{
			CVEID:            "CVE-2022-23529",
			CVSSScore:        7.2,
			AffectedSoftware: []string{"jsonwebtoken < 9.0.0"},
			AdvisoryLink:     "https://osv.dev/vulnerability/GHSA-27h2-hgpw-p957",
		},
	},
	{
		Source:  "AlienVault OTX",
		Summary: "New pulse created for FIN7 threat actor C2 infrastructure. Ingested 150+ new IP IOCs.",
	},
	{
		Source:  "Antivirus Detections",
		Summary: "Correlated global telemetry: 30% spike in detections for Trojan:Win32/Wacatac.B!ml.",
	},
	{
		Source:  "NVD/EPSS",
		Summary: "Critical vulnerability in Progress MOVEit Transfer (CVE-2023-34362) actively exploited.",
		VulnerabilityDetails: &models.VulnerabilityDetails{
			CVEID:            "CVE-2023-34362",
			CVSSScore:        9.8,
			AffectedSoftware: []string{"MOVEit Transfer"},
			AdvisoryLink:     "https://nvd.nist.gov/vuln/detail/CVE-2023-34362",
		},
	},
}

var directiveCatalog = []models.Directive{
	{
		Type:        models.DirectiveYaraRuleUpdate,
		RuleName:    "Office_Spawns_Networked_PowerShell",
		RuleContent: `rule Office_Spawns_Networked_PowerShell { strings: $a = "powershell" nocase $b = "WINWORD.EXE" nocase condition: all of them }`,
	},
	{
		Type:        models.DirectiveYaraRuleUpdate,
		RuleName:    "CobaltStrike_Beacon_Generic",
		RuleContent: `rule CobaltStrike_Beacon_Generic { strings: $s = { 69 68 69 68 69 6B } condition: $s }`,
	},
	{Type: models.DirectiveAgentUpgrade, Version: "3.2.0", TargetOS: "Windows"},
	{Type: models.DirectiveAgentUpgrade, Version: "3.2.0", TargetOS: "Linux"},
	{Type: models.DirectiveAgentUpgrade, Version: "3.2.1", TargetOS: "All"},
}

func (t alertTemplate) build(id string) *models.RawAlert {
	fields := make(map[string]any, len(t.fields))
	for k, v := range t.fields {
		fields[k] = v
	}
	device := t.device
	alertCtx := t.context
	alert := &models.RawAlert{
		ID:          id,
		Severity:    t.severity,
		Title:       t.title,
		Description: t.description,
		RawData: models.RawData{
			Device:  &device,
			Context: &alertCtx,
			Fields:  fields,
		},
	}
	if t.mitre != nil {
		m := *t.mitre
		alert.MitreMapping = &m
	}
	return alert
}

func cloneIntel(u models.LearningUpdate) *models.LearningUpdate {
	out := u
	if u.VulnerabilityDetails != nil {
		d := *u.VulnerabilityDetails
		d.AffectedSoftware = append([]string(nil), d.AffectedSoftware...)
		out.VulnerabilityDetails = &d
	}
	return &out
}
