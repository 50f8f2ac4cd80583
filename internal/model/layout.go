package model

import "path/filepath"

// File names of the result tree
const (
	FileNmapXML         = "full_scan.xml"
	FileNmapJSON        = "full_scan.json"
	FileSMBSigning      = "nxc_smb_signing.txt"
	FileRelay           = "relay.txt"
	FileLdapResults     = "ldap_results.json"
	FileUsernames       = "usernames.txt"
	FileManspiderRaw    = "manspider_raw_output.txt"
	FileManspiderTrace  = "manspider_parse_debug.txt"
	FileManspiderFiles  = "enum_file.json"
	FileManspiderCreds  = "grepcreds.json"
	CertipyResultSuffix = "_Certipy.json"
	ACLResultSuffix     = "_acl.json"
)

// Layout is the result tree under an output root. Writers and the
// aggregation view share it, so both agree on every path.
//
//	<root>/relay.txt
//	<root>/10_0_0_0_24/{full_scan.xml,full_scan.json,nxc_smb_signing.txt,relay.txt}
//	<root>/ldeep/<dc>/{trusts,pkis,delegations,users,machines-ip}.json
//	<root>/certipy/<dc>/<DOMAIN>_Certipy.json
//	<root>/bloodhound/<dc>/<dc>_bloodhound.zip
//	<root>/manspider/<cidr>/{enum_file.json,grepcreds.json}
//	<root>/acl/<dc>_acl.json
type Layout struct {
	Root string
}

func (l Layout) SubnetDir(subnet string) string {
	return filepath.Join(l.Root, SubnetDirName(subnet))
}

func (l Layout) GlobalRelay() string {
	return filepath.Join(l.Root, FileRelay)
}

func (l Layout) LdeepRoot() string      { return filepath.Join(l.Root, "ldeep") }
func (l Layout) CertipyRoot() string    { return filepath.Join(l.Root, "certipy") }
func (l Layout) BloodhoundRoot() string { return filepath.Join(l.Root, "bloodhound") }
func (l Layout) ManspiderRoot() string  { return filepath.Join(l.Root, "manspider") }
func (l Layout) ACLRoot() string        { return filepath.Join(l.Root, "acl") }

func (l Layout) LdeepDir(dc string) string {
	return filepath.Join(l.LdeepRoot(), SafeName(dc))
}

func (l Layout) CertipyDir(dc string) string {
	return filepath.Join(l.CertipyRoot(), SafeName(dc))
}

func (l Layout) BloodhoundDir(dc string) string {
	return filepath.Join(l.BloodhoundRoot(), SafeName(dc))
}

func (l Layout) ManspiderDir(cidr string) string {
	return filepath.Join(l.ManspiderRoot(), SafeName(cidr))
}

func (l Layout) ACLFile(dc string) string {
	return filepath.Join(l.ACLRoot(), SafeName(dc)+ACLResultSuffix)
}
