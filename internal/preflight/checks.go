package preflight

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/sys/unix"
)

// blake3("") from the reference test vectors.
const blake3Empty = "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262"

// CheckCrypto verifies hashing, signing and sealing with fixed inputs.
func CheckCrypto() Result {
	const name = "Crypto"

	sum := blake3.Sum256(nil)
	if hex.EncodeToString(sum[:]) != blake3Empty {
		return Result{Name: name, Detail: "blake3 known-answer test failed"}
	}

	seed := bytes.Repeat([]byte{0x42}, ed25519.SeedSize)
	key := ed25519.NewKeyFromSeed(seed)
	msg := []byte("coind sanity")
	sig := ed25519.Sign(key, msg)
	if !ed25519.Verify(key.Public().(ed25519.PublicKey), msg, sig) {
		return Result{Name: name, Detail: "ed25519 signature did not verify"}
	}
	sig[0] ^= 0xff
	if ed25519.Verify(key.Public().(ed25519.PublicKey), msg, sig) {
		return Result{Name: name, Detail: "ed25519 accepted a forged signature"}
	}

	aead, err := chacha20poly1305.New(bytes.Repeat([]byte{0x07}, chacha20poly1305.KeySize))
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("chacha20poly1305 unavailable (%v)", err)}
	}
	nonce := make([]byte, aead.NonceSize())
	sealed := aead.Seal(nil, nonce, msg, nil)
	opened, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil || !bytes.Equal(opened, msg) {
		return Result{Name: name, Detail: "chacha20poly1305 round trip failed"}
	}
	sealed[0] ^= 0xff
	if _, err := aead.Open(nil, nonce, sealed, nil); err == nil {
		return Result{Name: name, Detail: "chacha20poly1305 accepted a tampered message"}
	}
	return Result{Name: name, Passed: true, Detail: "blake3, ed25519, chacha20poly1305 ok"}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckDiskSpace verifies that at least minFree bytes are available to
// unprivileged writers on the filesystem holding path.
func CheckDiskSpace(name, path string, minFree uint64) Result {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	free := uint64(st.Bavail) * uint64(st.Bsize)
	if free < minFree {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %d MiB free, %d MiB required)", path, free>>20, minFree>>20)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d MiB free)", path, free>>20)}
}
