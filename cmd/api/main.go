package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/shopkart/orderflow/internal/aws"
	"github.com/shopkart/orderflow/internal/handlers"
)

func setupRouter(cfg handlers.HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterRoutes(r, cfg)

	return r
}

func main() {
	clients, err := aws.NewAWSClients(context.Background())

	if err != nil {
		log.Fatalf("failed to init aws clients: %v", err)
	}

	cfg := handlers.HandlerConfig{
		DynamoDBClient:   clients.DynamoDB,
		SQSClient:        clients.SQS,
		CloudWatchClient: clients.CloudWatch,
		Tables: handlers.Tables{
			Carts:            os.Getenv("CARTS_TABLE"),
			Wallets:          os.Getenv("WALLETS_TABLE"),
			Orders:           os.Getenv("ORDERS_TABLE"),
			SellerOrders:     os.Getenv("SELLER_ORDERS_TABLE"),
			SellerAggregates: os.Getenv("SELLER_AGGREGATES_TABLE"),
			CancelRequests:   os.Getenv("CANCEL_REQUESTS_TABLE"),
			ReturnRequests:   os.Getenv("RETURN_REQUESTS_TABLE"),
			Idempotency:      os.Getenv("IDEMPOTENCY_TABLE"),
			FanoutMarks:      os.Getenv("FANOUT_MARKS_TABLE"),
			UserOrdersIndex:  os.Getenv("USER_ORDERS_INDEX"),
		},
		QueueURL:  os.Getenv("TASKS_QUEUE_URL"),
		TTLWindow: 48 * time.Hour,

		CourierBaseURL:   os.Getenv("COURIER_BASE_URL"),
		CourierAuthToken: os.Getenv("COURIER_AUTH_TOKEN"),
		GatewayBaseURL:   os.Getenv("GATEWAY_BASE_URL"),
		GatewayKeyID:     os.Getenv("GATEWAY_KEY_ID"),
		GatewayKeySecret: os.Getenv("GATEWAY_KEY_SECRET"),
		GeocoderBaseURL:  os.Getenv("GEOCODER_BASE_URL"),
	}

	r := setupRouter(cfg)

	// if environment variable RUN_LOCAL is set to "true", run local HTTP server for development.
	if os.Getenv("RUN_LOCAL") == "true" {
		addr := ":8080"
		log.Printf("running local server on %s", addr)
		if err := r.Run(addr); err != nil {
			log.Fatalf("failed to run local server: %v", err)
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (interface{}, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
