package service

const (
	msgGreeting = "Hello, %s!\n\n" +
		"I can take payments in USD and send you a receipt once they go through.\n\n" +
		"/pay - start a new payment\n" +
		"/payments - show your payment history\n" +
		"/export - download your payments as a spreadsheet\n" +
		"/cancel - cancel the current payment"

	msgAskAmount      = "Enter the amount in USD (for example 25.00):"
	msgInvalidAmount  = "That doesn't look like a number. Enter the amount in USD, for example 25.00:"
	msgAmountPositive = "The amount must be a positive number. Enter the amount in USD:"
	msgAmountTooLarge = "The amount can't exceed $%s. Enter a smaller amount:"
	msgAskDescription = "What is this payment for? Enter a short description:"

	msgPaymentCreated = "Payment created.\n\nAmount: $%s\nDescription: %s\n\nPay using the button below, then check the status."
	msgRejected       = "The payment processor rejected this payment. Please try again with /pay and use plain latin letters and digits in the description."
	msgCreateFailed   = "We couldn't create the payment right now. Please try again later with /pay."

	msgCancelled = "Payment cancelled."
	msgIdleHint  = "Use /pay to start a new payment."

	msgNotFound         = "Payment not found."
	msgPending          = "Your payment is still processing. Check again in a moment."
	msgNotSucceeded     = "Payment status: %s. No receipt was issued."
	msgPaid             = "Payment successful!\nAmount: $%s\nDescription: %s"
	msgAlreadyReceipted = "This payment is already complete and its receipt was sent earlier.\nAmount: $%s\nDescription: %s"
	msgReceiptFailed    = "Your payment went through, but we couldn't generate the receipt. Check the status again later to get it."
	msgStatusFailed     = "We couldn't check the payment status right now. Please try again later."

	msgNoPayments     = "You have no payments yet. Use /pay to create one."
	msgHistoryHeader  = "Your payments:\n"
	msgHistoryLine    = "\n%s  $%s  %s\n%s, %s\n"
	msgExportFailed   = "We couldn't build the spreadsheet right now. Please try again later."
	msgSomethingWrong = "Something went wrong. Please try again later."

	btnPay   = "Pay now"
	btnCheck = "Check status"
)
