package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// otpRequests counts OTP provider calls by operation (send|verify) and
	// outcome (ok|rejected|error).
	otpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otp_requests_total",
			Help: "OTP provider calls by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)

	// chatMessages counts appended chat messages by sender.
	chatMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_total",
			Help: "Chat messages appended, by sender.",
		},
		[]string{"sender"},
	)

	// imageUploads counts image host uploads by outcome.
	imageUploads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_uploads_total",
			Help: "Image uploads by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(otpRequests, chatMessages, imageUploads)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case Detail(err) != "":
		return "rejected"
	}
	return "error"
}
