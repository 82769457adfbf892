// Package probe exposes the standard gRPC health service for the alert
// pipeline.
//
// New(status, auth) registers grpc.health.v1.Health. Track polls the
// pipeline and reports SERVING while the evaluation loop runs, for both the
// overall service ("") and "drivewatch.Monitor". With auth mode apikey every
// call, Check and Watch alike, must carry the key in the configured metadata
// header.
package probe
