package storage

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"
)

const (
	callRecordsPK = "DateKey"
	callRecordsSK = "UniqueID"
)

// CreateTablesIfNotExist creates the archive table for local development
func CreateTablesIfNotExist(ctx context.Context, client *dynamodb.Client, config DynamoConfig, logger zerolog.Logger) error {
	_, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(config.CallRecordsTable),
	})
	if err == nil {
		logger.Info().Str("table", config.CallRecordsTable).Msg("table already exists")
		return nil
	}

	_, err = client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(config.CallRecordsTable),
		KeySchema: []dbtypes.KeySchemaElement{
			{AttributeName: aws.String(callRecordsPK), KeyType: dbtypes.KeyTypeHash},
			{AttributeName: aws.String(callRecordsSK), KeyType: dbtypes.KeyTypeRange},
		},
		AttributeDefinitions: []dbtypes.AttributeDefinition{
			{AttributeName: aws.String(callRecordsPK), AttributeType: dbtypes.ScalarAttributeTypeS},
			{AttributeName: aws.String(callRecordsSK), AttributeType: dbtypes.ScalarAttributeTypeS},
		},
		BillingMode: dbtypes.BillingModePayPerRequest,
	})
	if err != nil {
		return fmt.Errorf("failed to create table %s: %w", config.CallRecordsTable, err)
	}
	logger.Info().Str("table", config.CallRecordsTable).Msg("table created")
	return nil
}
