package network

// AMQP declare/consume flags shared by the connection wrapper and the
// bus. Centralized here since neither owns all the call sites.
const (
	exchangeTypeDirect = "direct"

	durable          = true
	deleteWhenUnused = false
	exclusive        = false
	noWait           = false
	internal         = false
	noAck            = true
	noLocal          = false
	consumerTag      = ""
)
