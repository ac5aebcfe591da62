package intent

import (
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mr-tron/base58"
)

var (
	evmAddressPattern    = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
	evmHashPattern       = regexp.MustCompile(`^0x[a-fA-F0-9]{64}$`)
	solanaAddressPattern = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)
	bitcoinLegacyPattern = regexp.MustCompile(`^[13][a-km-zA-HJ-NP-Z1-9]{25,34}$`)
	bitcoinSegwitPattern = regexp.MustCompile(`^bc1[a-z0-9]{39,59}$`)
)

// ValidAddress 检查地址格式是否符合网络要求。
func ValidAddress(network Network, address string) bool {
	address = strings.TrimSpace(address)
	switch network {
	case NetworkEthereum, NetworkSepolia, NetworkBase, NetworkPolygon, NetworkAvalanche:
		return IsEVMAddress(address)
	case NetworkSolana:
		return isSolanaAddress(address)
	case NetworkBitcoin:
		return bitcoinLegacyPattern.MatchString(address) || bitcoinSegwitPattern.MatchString(address)
	default:
		return false
	}
}

// IsEVMAddress 判断是否为 0x 开头的 40 位十六进制地址。
func IsEVMAddress(address string) bool {
	return evmAddressPattern.MatchString(address) && common.IsHexAddress(address)
}

// IsTxHash 判断是否为 0x 开头的 64 位十六进制交易哈希。
func IsTxHash(hash string) bool {
	return evmHashPattern.MatchString(hash)
}

func isSolanaAddress(address string) bool {
	if !solanaAddressPattern.MatchString(address) {
		return false
	}
	raw, err := base58.Decode(address)
	return err == nil && len(raw) == 32
}

// ShortAddress 返回 0x1234...abcd 形式的缩写。
func ShortAddress(address string) string {
	if len(address) <= 10 {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}
