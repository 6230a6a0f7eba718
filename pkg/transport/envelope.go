package transport

import (
	"encoding/gob"

	"github.com/Kernelock/voltdb/pkg/ids"
	"github.com/Kernelock/voltdb/pkg/sps"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Envelope is the unit of transfer over a site-to-site stream. Msg holds
// one of pkg/sps's message types; gob needs every concrete type that can
// appear behind the any-typed field registered up front (see init below).
type Envelope struct {
	From   ids.SiteID
	To     ids.SiteID
	SentAt *timestamppb.Timestamp
	Msg    any
}

func init() {
	gob.Register(sps.InitiateTask{})
	gob.Register(sps.InitiateResponse{})
	gob.Register(sps.FragmentTask{})
	gob.Register(sps.FragmentResponse{})
	gob.Register(sps.CompleteTransactionMessage{})
	gob.Register(sps.CompleteTransactionResponse{})
	gob.Register(sps.BorrowTask{})
	gob.Register(sps.RepairLogTruncationMessage{})
	gob.Register(sps.Iv2LogFaultMessage{})
	gob.Register(sps.DumpMessage{})
	gob.Register(sps.DumpPlanThenExitMessage{})
	gob.Register(sps.DummyTransactionTask{})
	gob.Register(sps.DummyTransactionResponse{})
	gob.Register(sps.RepairMessage{})
}
