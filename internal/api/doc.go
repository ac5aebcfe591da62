// Package api exposes the REST surface: the chat router, the multi-agent DeFi
// analysis, chat history, gateway passthroughs, chart files, health and
// Prometheus metrics.
package api
