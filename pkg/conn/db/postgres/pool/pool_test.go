package pool_test

import (
	kpool "github.com/skein-run/skein/pkg/conn/db/postgres/pool"
)

// The stores send single statements straight on their handle as well
// as through transactions, so every handle must be a Queryer.
var (
	_ kpool.Queryer = kpool.Pool(nil)
	_ kpool.Queryer = kpool.Conn(nil)
	_ kpool.Queryer = kpool.Tx(nil)
)
