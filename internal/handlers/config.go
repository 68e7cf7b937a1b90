package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/shopkart/orderflow/internal/aws"
	"github.com/shopkart/orderflow/internal/cancel"
	"github.com/shopkart/orderflow/internal/cart"
	"github.com/shopkart/orderflow/internal/checkout"
	"github.com/shopkart/orderflow/internal/fanout"
	"github.com/shopkart/orderflow/internal/geocode"
	"github.com/shopkart/orderflow/internal/idempotency"
	"github.com/shopkart/orderflow/internal/orders"
	"github.com/shopkart/orderflow/internal/payment"
	"github.com/shopkart/orderflow/internal/returns"
	"github.com/shopkart/orderflow/internal/shipping"
	"github.com/shopkart/orderflow/internal/validation"
	"github.com/shopkart/orderflow/internal/wallet"
)

// Tables names every DynamoDB table the API touches.
type Tables struct {
	Carts            string
	Wallets          string
	Orders           string
	SellerOrders     string
	SellerAggregates string
	CancelRequests   string
	ReturnRequests   string
	Idempotency      string
	FanoutMarks      string
	UserOrdersIndex  string
}

// HandlerConfig groups dependencies for the API.
type HandlerConfig struct {
	DynamoDBClient   aws.DynamoDBAPI
	SQSClient        aws.SQSAPI
	CloudWatchClient aws.CloudWatchAPI
	Tables           Tables
	QueueURL         string
	TTLWindow        time.Duration

	CourierBaseURL   string
	CourierAuthToken string
	GatewayBaseURL   string
	GatewayKeyID     string
	GatewayKeySecret string
	GeocoderBaseURL  string
}

// deps is the wired component graph behind the routes.
type deps struct {
	validate   *validatorv10.Validate
	carts      *cart.Store
	ledger     *wallet.Ledger
	orderStore *orders.Store
	mirrors    *orders.MirrorStore
	requests   *orders.RequestStore
	idemp      *idempotency.Store
	writer     *fanout.Writer
	canceller  *cancel.Machine
	returner   *returns.Machine
	courier    *shipping.Adapter
	gateway    *payment.Gateway
	geocoder   *geocode.Client
	sessions   *checkout.Manager
	metrics    *aws.Metrics
}

// RegisterRoutes wires the component graph and registers every route.
func RegisterRoutes(r *gin.Engine, cfg HandlerConfig) {
	metrics := aws.NewMetrics(cfg.CloudWatchClient, "Orderflow")
	publisher := aws.NewPublisher(cfg.SQSClient, cfg.QueueURL)

	carts := cart.NewStore(cfg.DynamoDBClient, cfg.Tables.Carts)
	ledger := wallet.NewLedger(cfg.DynamoDBClient, cfg.Tables.Wallets)
	orderStore := orders.NewStore(cfg.DynamoDBClient, cfg.Tables.Orders, cfg.Tables.UserOrdersIndex)
	mirrors := orders.NewMirrorStore(cfg.DynamoDBClient, cfg.Tables.SellerOrders, cfg.Tables.SellerAggregates)
	requests := orders.NewRequestStore(cfg.DynamoDBClient, cfg.Tables.CancelRequests, cfg.Tables.ReturnRequests)
	idemp := idempotency.NewStore(cfg.DynamoDBClient, cfg.Tables.Idempotency, cfg.TTLWindow)
	marks := fanout.NewMarkStore(cfg.DynamoDBClient, cfg.Tables.FanoutMarks)

	writer := fanout.NewWriter(ledger, orderStore, mirrors, marks, publisher, metrics, cfg.Tables.Idempotency, cfg.TTLWindow)
	courier := shipping.NewAdapter(cfg.CourierBaseURL, cfg.CourierAuthToken)
	gateway := payment.NewGateway(cfg.GatewayBaseURL, cfg.GatewayKeyID, cfg.GatewayKeySecret)
	geocoder := geocode.NewClient(cfg.GeocoderBaseURL)

	d := &deps{
		validate:   validation.New(),
		carts:      carts,
		ledger:     ledger,
		orderStore: orderStore,
		mirrors:    mirrors,
		requests:   requests,
		idemp:      idemp,
		writer:     writer,
		canceller:  cancel.NewMachine(orderStore, mirrors, requests, courier, publisher, metrics),
		returner:   returns.NewMachine(orderStore, requests, ledger, metrics),
		courier:    courier,
		gateway:    gateway,
		geocoder:   geocoder,
		sessions:   checkout.NewManager(),
		metrics:    metrics,
	}

	registerCartRoutes(r, d)
	registerWalletRoutes(r, d)
	registerCheckoutRoutes(r, d)
	registerOrderRoutes(r, d)
}
