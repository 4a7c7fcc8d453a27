// Package secure provides memory-safe handling of sensitive data.
//
// This package wraps the memguard library to keep the backing store's
// resolved password out of swap, core dumps and accidental log output. The
// password lives encrypted at rest in memory (XSalsa20Poly1305) and is only
// decrypted into a locked buffer for the moment it is needed to build a
// connection string.
//
// Create a secure buffer from sensitive bytes:
//
//	buf, err := secure.NewBuffer([]byte(params.Password))
//	if err != nil {
//	    // mlock may be unavailable; the error says so
//	}
//	defer buf.Destroy()
//
//	locked, err := buf.Open()
//	if err != nil {
//	    return err
//	}
//	defer locked.Destroy()
//	dsn := buildDSN(locked.Bytes())
//
// If mlock is unavailable (e.g. RLIMIT_MEMLOCK on Linux), memguard degrades
// to standard Go memory. For complete cleanup at process exit, call
// memguard.Purge() from main.
//
// This protects against swapped-out plaintext and core dumps. It does not
// protect against an attacker with root on the running process or against
// hardware-level attacks.
package secure
