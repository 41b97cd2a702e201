package row

import (
	"encoding/binary"

	"github.com/xmysql-server/innodb-core/pkg/txn"
)

// versionHeaderLen is trx-id (8 bytes) plus the roll-ptr's two fields
// (8 bytes each), the MVCC header every clustered-index record carries
// ahead of its row payload, per §4.6.
const versionHeaderLen = 24

// EncodeVersioned prepends a clustered-index record's stamping
// transaction id and roll-ptr to the previous version ahead of payload,
// per §4.6 "every clustered-index record carries trx-id and roll-ptr".
func EncodeVersioned(trxID uint64, roll txn.RollPtr, payload []byte) []byte {
	buf := make([]byte, versionHeaderLen+len(payload))
	binary.BigEndian.PutUint64(buf[0:], trxID)
	binary.BigEndian.PutUint64(buf[8:], roll.TrxID)
	binary.BigEndian.PutUint64(buf[16:], roll.Seq)
	copy(buf[versionHeaderLen:], payload)
	return buf
}

// DecodeVersioned reverses EncodeVersioned.
func DecodeVersioned(data []byte) (trxID uint64, roll txn.RollPtr, payload []byte) {
	trxID = binary.BigEndian.Uint64(data[0:])
	roll = txn.RollPtr{
		TrxID: binary.BigEndian.Uint64(data[8:]),
		Seq:   binary.BigEndian.Uint64(data[16:]),
	}
	payload = data[versionHeaderLen:]
	return
}
