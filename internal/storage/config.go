package storage

// DynamoMode represents the DynamoDB connection mode
type DynamoMode string

const (
	DynamoModeLocal DynamoMode = "local"
	DynamoModeAWS   DynamoMode = "aws"
	DynamoModeNone  DynamoMode = "none"
)

// DynamoConfig holds DynamoDB configuration
type DynamoConfig struct {
	Mode             DynamoMode
	Endpoint         string // local mode only
	Region           string
	CallRecordsTable string
}

// ParseDynamoMode maps unknown values to DynamoModeNone
func ParseDynamoMode(s string) DynamoMode {
	switch mode := DynamoMode(s); mode {
	case DynamoModeLocal, DynamoModeAWS:
		return mode
	default:
		return DynamoModeNone
	}
}
