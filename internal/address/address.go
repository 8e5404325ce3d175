// Package address детерминированно вычисляет идентичности ресурсов (vault, policy, pending action)
// из seed-строк и адреса владельца. Одинаковые seeds дают одинаковый адрес, поэтому на
// одного владельца существует ровно одно хранилище.
package address

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"

	"github.com/xela07ax/aegis-vault/internal/domain"
)

const (
	SeedVault         = "vault"
	SeedPolicy        = "policy"
	SeedPendingAction = "pending_action"
)

// Derive Keccak-256 от length-prefixed seeds, адрес = последние 20 байт (как CREATE2).
// Length-prefix исключает коллизии вида ("ab","c") vs ("a","bc").
func Derive(seeds ...[]byte) string {
	h := sha3.NewLegacyKeccak256()
	var prefix [4]byte
	for _, s := range seeds {
		binary.BigEndian.PutUint32(prefix[:], uint32(len(s)))
		h.Write(prefix[:])
		h.Write(s)
	}
	sum := h.Sum(nil)
	return common.BytesToAddress(sum[12:]).Hex()
}

// VaultID адрес хранилища владельца
func VaultID(owner string) string {
	return Derive([]byte(SeedVault), common.HexToAddress(owner).Bytes())
}

// PolicyID 1:1 с хранилищем
func PolicyID(vaultID string) string {
	return Derive([]byte(SeedPolicy), common.HexToAddress(vaultID).Bytes())
}

// PendingActionID использует монотонный nonce хранилища, а не счетчик очереди:
// счетчик уменьшается при резолве и дал бы повторный адрес.
func PendingActionID(vaultID string, nonce uint64) string {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], nonce)
	return Derive([]byte(SeedPendingAction), common.HexToAddress(vaultID).Bytes(), n[:])
}

// Normalize проверяет hex-адрес и приводит его к каноничной EIP-55 форме
func Normalize(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if !common.IsHexAddress(addr) {
		return "", fmt.Errorf("%w: %q is not a 20-byte hex address", domain.ErrInvalidAddress, addr)
	}
	a := common.HexToAddress(addr)
	if a == (common.Address{}) {
		return "", fmt.Errorf("%w: zero address is not allowed", domain.ErrInvalidAddress)
	}
	return a.Hex(), nil
}

// NormalizeAll нормализует список и отбрасывает дубликаты с сохранением порядка
func NormalizeAll(addrs []string) ([]string, error) {
	out := make([]string, 0, len(addrs))
	seen := make(map[string]struct{}, len(addrs))
	for _, raw := range addrs {
		a, err := Normalize(raw)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[a]; dup {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out, nil
}

// Equal сравнение без учета регистра (checksum)
func Equal(a, b string) bool {
	if !common.IsHexAddress(a) || !common.IsHexAddress(b) {
		return false
	}
	return common.HexToAddress(a) == common.HexToAddress(b)
}
