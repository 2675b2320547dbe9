package types

// CallRecord represents a closed call for DynamoDB persistence
type CallRecord struct {
	DateKey     string    `json:"dateKey" dynamodbav:"DateKey"`   // YYYY-MM-DD (partition key)
	UniqueID    string    `json:"uniqueId" dynamodbav:"UniqueID"` // sort key
	LinkedID    string    `json:"linkedId" dynamodbav:"LinkedID"`
	CompanyID   string    `json:"companyId" dynamodbav:"CompanyID"`
	Queue       string    `json:"queue" dynamodbav:"Queue"`
	Direction   Direction `json:"direction" dynamodbav:"Direction"`
	PhoneNumber string    `json:"phoneNumber" dynamodbav:"PhoneNumber"`
	ExternalID  string    `json:"nit" dynamodbav:"ExternalID"`
	Extension   string    `json:"extensionChannel" dynamodbav:"ExtensionChannel"`
	StartTime   string    `json:"startTime" dynamodbav:"StartTime"` // RFC3339, first timeline event
	EndTime     string    `json:"endTime" dynamodbav:"EndTime"`     // RFC3339, closing event
	Duration    float64   `json:"duration" dynamodbav:"Duration"`   // seconds
	EventCount  int       `json:"eventCount" dynamodbav:"EventCount"`
}
