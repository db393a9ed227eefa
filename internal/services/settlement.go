package services

import (
	"context"
	"encoding/xml"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/moov-io/iso20022/pkg/common"
	"github.com/moov-io/iso20022/pkg/pacs_v08"

	"github.com/conciergebank/backend/internal/models"
)

const settlementQueueKey = "settlement_queue"

// SettlementService hands pending external and p2p transfers to the
// clearing rail as pacs.008 messages on a Redis queue. Without Redis the
// message is logged and the transfer stays pending until replayed.
type SettlementService struct {
	redis *redis.Client
}

func NewSettlementService(rdb *redis.Client) *SettlementService {
	return &SettlementService{redis: rdb}
}

// BuildPacs008 maps a pending transfer onto a pacs.008
// FIToFICustomerCreditTransfer message.
func (ss *SettlementService) BuildPacs008(t *models.Transfer) *pacs_v08.FIToFICustomerCreditTransferV08 {
	msgID := uuid.New().String()
	now := time.Now()

	creditorName := ""
	memberID := ""
	if t.ToExternal != nil {
		creditorName = t.ToExternal.Name
		if creditorName == "" {
			creditorName = t.ToExternal.Email
		}
		memberID = t.ToExternal.RoutingNumber
	}

	return &pacs_v08.FIToFICustomerCreditTransferV08{
		GrpHdr: pacs_v08.GroupHeader93{
			MsgId:   common.Max35Text(msgID),
			CreDtTm: common.ISODateTime(now),
			NbOfTxs: "1",
			TtlIntrBkSttlmAmt: &pacs_v08.ActiveCurrencyAndAmount{
				Ccy:   common.ActiveCurrencyCode("USD"),
				Value: t.Amount.InexactFloat64(),
			},
			IntrBkSttlmDt: (*common.ISODate)(&now),
			SttlmInf: pacs_v08.SettlementInstruction7{
				SttlmMtd: "CLRG",
			},
		},
		CdtTrfTxInf: []pacs_v08.CreditTransferTransaction39{
			{
				PmtId: pacs_v08.PaymentIdentification7{
					InstrId:    &[]common.Max35Text{common.Max35Text(t.ID)}[0],
					EndToEndId: common.Max35Text(t.ID),
					TxId:       &[]common.Max35Text{common.Max35Text(t.ID)}[0],
				},
				IntrBkSttlmAmt: pacs_v08.ActiveCurrencyAndAmount{
					Ccy:   common.ActiveCurrencyCode("USD"),
					Value: t.Amount.InexactFloat64(),
				},
				IntrBkSttlmDt: (*common.ISODate)(&now),
				ChrgBr:        "SLEV",
				DbtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						BICFI: &[]common.BICFIDec2014Identifier{common.BICFIDec2014Identifier("CONCIERG")}[0],
					},
				},
				Dbtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(t.FromAccountID)}[0],
				},
				CdtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
					FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
						ClrSysMmbId: &pacs_v08.ClearingSystemMemberIdentification2{
							MmbId: common.Max35Text(memberID),
						},
					},
				},
				Cdtr: pacs_v08.PartyIdentification135{
					Nm: &[]common.Max140Text{common.Max140Text(creditorName)}[0],
				},
			},
		},
	}
}

// Enqueue serializes the transfer as pacs.008 XML and pushes it onto the
// settlement queue. Failures are logged, not surfaced: the transfer row is
// already committed as pending and can be replayed.
func (ss *SettlementService) Enqueue(ctx context.Context, t *models.Transfer) {
	doc := ss.BuildPacs008(t)
	payload, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		log.Printf("[TRANSFER] Failed to build settlement message for transfer %s: %v", t.ID, err)
		return
	}

	if ss.redis == nil {
		log.Printf("[TRANSFER] Settlement queue unavailable, transfer %s stays pending", t.ID)
		return
	}

	if err := ss.redis.RPush(ctx, settlementQueueKey, string(payload)).Err(); err != nil {
		log.Printf("[TRANSFER] Failed to enqueue transfer %s for settlement: %v", t.ID, err)
		return
	}
	log.Printf("[TRANSFER] Transfer %s enqueued for settlement", t.ID)
}

// QueueDepth reports the number of pending settlement messages.
func (ss *SettlementService) QueueDepth(ctx context.Context) (int64, error) {
	if ss.redis == nil {
		return 0, fmt.Errorf("%w: settlement queue unavailable", ErrUpstream)
	}
	return ss.redis.LLen(ctx, settlementQueueKey).Result()
}
