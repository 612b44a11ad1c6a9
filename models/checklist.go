package models

import "strings"

// ChecklistKey identifies a semantic document type independent of which
// physical collection holds it or how its label is capitalized.
type ChecklistKey string

// Semantic document types tracked per donor
const (
	ChecklistConsent   ChecklistKey = "consent"
	ChecklistAffidavit ChecklistKey = "affidavit"
	ChecklistBlood     ChecklistKey = "blood"
	ChecklistInsurance ChecklistKey = "insurance"
	ChecklistOPU       ChecklistKey = "opu"
	ChecklistAllotment ChecklistKey = "allotment"
)

// DocumentCollection names one of the four physical slot collections on a
// donor record.
type DocumentCollection string

// The four document collections
const (
	CollectionDonorDocuments     DocumentCollection = "donorDocuments"
	CollectionReports            DocumentCollection = "reports"
	CollectionOtherDocuments     DocumentCollection = "otherDocuments"
	CollectionAllotmentDocuments DocumentCollection = "allotmentDocuments"
)

// ChecklistSlotRef points a semantic key at its canonical slot. This table is
// the single lookup consulted by upload, delete, timeline and readiness code;
// nothing else hardcodes label-to-collection knowledge.
type ChecklistSlotRef struct {
	Collection DocumentCollection
	ReportName string
}

var checklistSlots = map[ChecklistKey]ChecklistSlotRef{
	ChecklistConsent:   {CollectionDonorDocuments, "Consent Form"},
	ChecklistAffidavit: {CollectionDonorDocuments, "Affidavit Form"},
	ChecklistBlood:     {CollectionReports, "Blood Report"},
	ChecklistInsurance: {CollectionOtherDocuments, "Insurance Documents"},
	ChecklistOPU:       {CollectionAllotmentDocuments, "OPU Process"},
}

// SlotRef returns the canonical collection and report name for a semantic
// key. The allotment key has no single canonical slot (any allotment
// document satisfies it) and reports ok=false.
func SlotRef(key ChecklistKey) (ChecklistSlotRef, bool) {
	ref, ok := checklistSlots[key]
	return ref, ok
}

// ParseDocumentCollection maps a route segment onto one of the four
// collections.
func ParseDocumentCollection(s string) (DocumentCollection, bool) {
	switch DocumentCollection(s) {
	case CollectionDonorDocuments, CollectionReports, CollectionOtherDocuments, CollectionAllotmentDocuments:
		return DocumentCollection(s), true
	}
	return "", false
}

// NewDocumentChecklists returns the empty placeholder slots written at donor
// registration. Slots are never added or removed afterwards, except
// operator-defined extras appended to allotmentDocuments.
func NewDocumentChecklists() (donorDocs, reports, otherDocs, allotmentDocs []DocumentSlot) {
	donorDocs = []DocumentSlot{
		{ReportName: "Consent Form"},
		{ReportName: "Affidavit Form"},
		{ReportName: "Identity Proof"},
	}
	reports = []DocumentSlot{
		{ReportName: "Blood Report"},
		{ReportName: "Ultrasound Report"},
	}
	otherDocs = []DocumentSlot{
		{ReportName: "Insurance Documents"},
	}
	allotmentDocs = []DocumentSlot{
		{ReportName: "OPU Process"},
	}
	return
}

// DocumentCollectionSlots returns the named collection, or nil for an
// unknown name.
func (d *DonorDetails) DocumentCollectionSlots(c DocumentCollection) []DocumentSlot {
	switch c {
	case CollectionDonorDocuments:
		return d.DonorDocuments
	case CollectionReports:
		return d.Reports
	case CollectionOtherDocuments:
		return d.OtherDocuments
	case CollectionAllotmentDocuments:
		return d.AllotmentDocuments
	}
	return nil
}

// SlotSatisfied reports whether the semantic document type is satisfied,
// derived solely from hasFile. A missing slot reports pending, never
// "unknown".
func (d *DonorDetails) SlotSatisfied(key ChecklistKey) bool {
	if key == ChecklistAllotment {
		for _, slot := range d.AllotmentDocuments {
			if slot.HasFile {
				return true
			}
		}
		return false
	}
	ref, ok := checklistSlots[key]
	if !ok {
		return false
	}
	for _, slot := range d.DocumentCollectionSlots(ref.Collection) {
		if strings.EqualFold(slot.ReportName, ref.ReportName) {
			return slot.HasFile
		}
	}
	return false
}

// ChecklistItem is one line of the case-completion checklist.
type ChecklistItem struct {
	Label     string `json:"label"`
	Satisfied bool   `json:"satisfied"`
}

// CaseReadiness is the precomputed close-out verdict returned with every
// donor read so all consumers agree on the same satisfied/pending state.
type CaseReadiness struct {
	Items []ChecklistItem `json:"items"`
	Ready bool            `json:"ready"`
}

// Missing returns the labels of unsatisfied items, in display order.
func (c CaseReadiness) Missing() []string {
	var missing []string
	for _, item := range c.Items {
		if !item.Satisfied {
			missing = append(missing, item.Label)
		}
	}
	return missing
}

// EvaluateCaseReadiness derives the close-out checklist from current donor
// state. Pure; re-run on every read, holds no state of its own. The order is
// fixed for display, the verdict is the AND of every item.
func EvaluateCaseReadiness(d *DonorDetails) CaseReadiness {
	items := []ChecklistItem{
		{Label: "Case Registered", Satisfied: true},
		{Label: "Blood Report", Satisfied: d.SlotSatisfied(ChecklistBlood)},
		{Label: "Donor Allotted", Satisfied: d.IsAllotted},
		{Label: "Consent Form", Satisfied: d.SlotSatisfied(ChecklistConsent)},
		{Label: "Affidavit Form", Satisfied: d.SlotSatisfied(ChecklistAffidavit)},
		{Label: "Insurance Documents", Satisfied: d.SlotSatisfied(ChecklistInsurance)},
		{Label: "Allotment Documents", Satisfied: d.SlotSatisfied(ChecklistAllotment)},
		{Label: "Allotment Remarks", Satisfied: d.AllotmentRemarks != nil},
		{Label: "OPU Process", Satisfied: d.SlotSatisfied(ChecklistOPU)},
	}
	ready := true
	for _, item := range items {
		if !item.Satisfied {
			ready = false
			break
		}
	}
	return CaseReadiness{Items: items, Ready: ready}
}
