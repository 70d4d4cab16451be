package notionsync

import (
	"time"

	"github.com/jomei/notionapi"

	"github.com/dvloznov/bank-data-pipeline/internal/domain"
)

// Notion database property names.
const (
	PropName          = "Name"
	PropDate          = "Date"
	PropAmount        = "Amount"
	PropMerchant      = "Merchant"
	PropAccount       = "Account"
	PropCategory      = "Category"
	PropTransactionID = "Transaction ID"
	PropItemID        = "Item ID"
)

func richText(content string) []notionapi.RichText {
	return []notionapi.RichText{{
		Type: notionapi.ObjectTypeText,
		Text: &notionapi.Text{Content: content},
	}}
}

// RecordToProperties maps a record onto the transactions database schema.
func RecordToProperties(r domain.TransactionRecord, itemID string) notionapi.Properties {
	props := notionapi.Properties{
		PropName:          notionapi.TitleProperty{Title: richText(r.Name)},
		PropAmount:        notionapi.NumberProperty{Number: r.Amount},
		PropTransactionID: notionapi.RichTextProperty{RichText: richText(r.TransactionID)},
	}

	if d, err := time.Parse("2006-01-02", r.Date); err == nil {
		date := notionapi.Date(d)
		props[PropDate] = notionapi.DateProperty{Date: &notionapi.DateObject{Start: &date}}
	}
	if r.MerchantName != nil && *r.MerchantName != "" {
		props[PropMerchant] = notionapi.RichTextProperty{RichText: richText(*r.MerchantName)}
	}
	if r.AccountName != "" {
		props[PropAccount] = notionapi.SelectProperty{Select: notionapi.Option{Name: r.AccountName}}
	}
	if len(r.Category) > 0 {
		opts := make([]notionapi.Option, 0, len(r.Category))
		for _, c := range r.Category {
			opts = append(opts, notionapi.Option{Name: c})
		}
		props[PropCategory] = notionapi.MultiSelectProperty{MultiSelect: opts}
	}
	if itemID != "" {
		props[PropItemID] = notionapi.RichTextProperty{RichText: richText(itemID)}
	}
	return props
}

// transactionIDOf reads the Transaction ID property of a page, or "".
func transactionIDOf(page notionapi.Page) string {
	prop, ok := page.Properties[PropTransactionID]
	if !ok {
		return ""
	}
	var rt []notionapi.RichText
	switch p := prop.(type) {
	case *notionapi.RichTextProperty:
		rt = p.RichText
	case notionapi.RichTextProperty:
		rt = p.RichText
	}
	if len(rt) == 0 {
		return ""
	}
	if rt[0].PlainText != "" {
		return rt[0].PlainText
	}
	if rt[0].Text != nil {
		return rt[0].Text.Content
	}
	return ""
}
