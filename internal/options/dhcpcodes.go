package options

// DHCPv4 option codes from RFC 2132 that the engine references by
// name elsewhere in the package (classification, overload, PRL).
const (
	CodePad                   uint8 = 0
	CodeSubnetMask            uint8 = 1
	CodeTimeOffset            uint8 = 2
	CodeRouter                uint8 = 3
	CodeDomainNameServer      uint8 = 6
	CodeHostName              uint8 = 12
	CodeDomainName            uint8 = 15
	CodeBroadcastAddress      uint8 = 28
	CodeRequestedIPAddress    uint8 = 50
	CodeIPAddressLeaseTime    uint8 = 51
	CodeOptionOverload        uint8 = 52
	CodeDHCPMessageType       uint8 = 53
	CodeServerIdentifier      uint8 = 54
	CodeParameterRequestList  uint8 = 55
	CodeMessage               uint8 = 56
	CodeMaxMessageSize        uint8 = 57
	CodeRenewalTimeT1         uint8 = 58
	CodeRebindingTimeT2       uint8 = 59
	CodeVendorClassIdentifier uint8 = 60
	CodeClientIdentifier      uint8 = 61
	CodeTFTPServerName        uint8 = 66
	CodeBootFileName          uint8 = 67
	CodeRelayAgentInformation uint8 = 82
	CodeEnd                   uint8 = 255
)

// Overload bit values for option 52.
const (
	OverloadFile  = 1
	OverloadSname = 2
	OverloadBoth  = 3
)

// defaultPriorityList mirrors the source's default_priority_list: the
// order in which configured options the client's Parameter Request
// List does not name are packed into the reply, after the PRL-named
// ones; options later in the resulting order are the first dropped
// under option-overflow (§7).
var defaultPriorityList = []uint8{
	CodeSubnetMask,
	CodeRouter,
	CodeDomainNameServer,
	CodeHostName,
	CodeDomainName,
	CodeBroadcastAddress,
	CodeIPAddressLeaseTime,
	CodeRenewalTimeT1,
	CodeRebindingTimeT2,
	CodeServerIdentifier,
	CodeTFTPServerName,
	CodeBootFileName,
}

func builtinDHCPUniverse() *Universe {
	u := NewUniverse("dhcp")
	defs := []*Def{
		{Code: CodeSubnetMask, Name: "subnet-mask", Type: TypeIPAddress},
		{Code: CodeTimeOffset, Name: "time-offset", Type: TypeInt32},
		{Code: CodeRouter, Name: "routers", Type: TypeArray, Elems: []ValueType{TypeIPAddress}},
		{Code: CodeDomainNameServer, Name: "domain-name-servers", Type: TypeArray, Elems: []ValueType{TypeIPAddress}},
		{Code: CodeHostName, Name: "host-name", Type: TypeText},
		{Code: CodeDomainName, Name: "domain-name", Type: TypeText},
		{Code: CodeBroadcastAddress, Name: "broadcast-address", Type: TypeIPAddress},
		{Code: CodeRequestedIPAddress, Name: "dhcp-requested-address", Type: TypeIPAddress},
		{Code: CodeIPAddressLeaseTime, Name: "dhcp-lease-time", Type: TypeUint32},
		{Code: CodeOptionOverload, Name: "dhcp-option-overload", Type: TypeUint8},
		{Code: CodeDHCPMessageType, Name: "dhcp-message-type", Type: TypeUint8},
		{Code: CodeServerIdentifier, Name: "dhcp-server-identifier", Type: TypeIPAddress},
		{Code: CodeParameterRequestList, Name: "dhcp-parameter-request-list", Type: TypeArray, Elems: []ValueType{TypeUint8}},
		{Code: CodeMessage, Name: "dhcp-message", Type: TypeText},
		{Code: CodeMaxMessageSize, Name: "dhcp-max-message-size", Type: TypeUint16},
		{Code: CodeRenewalTimeT1, Name: "dhcp-renewal-time", Type: TypeUint32},
		{Code: CodeRebindingTimeT2, Name: "dhcp-rebinding-time", Type: TypeUint32},
		{Code: CodeVendorClassIdentifier, Name: "vendor-class-identifier", Type: TypeString},
		{Code: CodeClientIdentifier, Name: "dhcp-client-identifier", Type: TypeString},
		{Code: CodeTFTPServerName, Name: "tftp-server-name", Type: TypeText},
		{Code: CodeBootFileName, Name: "bootfile-name", Type: TypeText},
		{Code: CodeRelayAgentInformation, Name: "dhcp-agent-options", Type: TypeString},
	}
	for _, d := range defs {
		u.Register(d)
	}
	return u
}

// Server-universe (private configuration options) codes. These are
// never placed on the wire; they configure server policy the way
// dhcpd.conf's `server` space options do (bootp-policy, ping-check
// timeouts, authoritative).
const (
	ServerCodeBootpPolicy   uint8 = 1
	ServerCodePingCheck     uint8 = 2
	ServerCodePingTimeoutMs uint8 = 3
	ServerCodeAuthoritative uint8 = 4
)

func builtinServerUniverse() *Universe {
	u := NewUniverse("server")
	defs := []*Def{
		{Code: ServerCodeBootpPolicy, Name: "bootp-policy", Type: TypeText},
		{Code: ServerCodePingCheck, Name: "ping-check", Type: TypeBoolean},
		{Code: ServerCodePingTimeoutMs, Name: "ping-timeout-ms", Type: TypeUint32},
		{Code: ServerCodeAuthoritative, Name: "authoritative", Type: TypeBoolean},
	}
	for _, d := range defs {
		u.Register(d)
	}
	return u
}
