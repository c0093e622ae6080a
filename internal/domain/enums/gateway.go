package enums

type Gateway string

const (
	GatewayCamPay Gateway = "campay"
	GatewayFapshi Gateway = "fapshi"
)
