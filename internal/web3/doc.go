// Package web3 holds the chain catalog and read-only RPC clients. The
// catalog (configs/chains.yaml) names the chains and their probe order; when
// RPC endpoints are configured, native balances are read directly from nodes
// to pick the chain for address analysis.
package web3
