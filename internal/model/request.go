package model

import "time"

// 理由のデフォルト値
const (
	DefaultClaimReason  = "Work/Study"
	DefaultAbsentReason = "study/work"
)

// PendingRequest は (部門, 開催予定) ごとの出欠申請を表す。
// pending / admin_check / admin_accept / attended の4フラグで状態を表す。
type PendingRequest struct {
	ID          string
	UserID      *string
	VenueID     string
	DivisionID  string
	Reason      string
	Pending     bool
	AdminCheck  bool
	AdminAccept bool
	Attended    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// 一覧取得時に結合される表示用情報
	Claimant     *User
	DivisionName string
	DivisionRole string
	Venue        *Venue
}

// RequestState はフラグの組から導出される申請状態。
type RequestState string

const (
	StateNew           RequestState = "new"
	StateUnderReview   RequestState = "pending"
	StateSelfCertified RequestState = "absent"
	StateAccepted      RequestState = "accepted"
	StateRejected      RequestState = "rejected"
	StateUnknown       RequestState = "unknown"
)

// State は現在のフラグから状態を返す。
func (p *PendingRequest) State() RequestState {
	switch {
	case !p.Pending && !p.AdminCheck && !p.AdminAccept && !p.Attended:
		return StateNew
	case p.Pending && !p.AdminCheck && !p.AdminAccept:
		return StateUnderReview
	case !p.Pending && p.AdminCheck && p.AdminAccept && !p.Attended:
		return StateSelfCertified
	case !p.Pending && p.AdminCheck && p.AdminAccept && p.Attended:
		return StateAccepted
	case p.Pending && p.AdminCheck && !p.AdminAccept:
		return StateRejected
	default:
		return StateUnknown
	}
}

// Reset は申請を初期状態に戻す。申請者と理由も消去する。
func (p *PendingRequest) Reset() {
	p.UserID = nil
	p.Reason = ""
	p.Pending = false
	p.AdminCheck = false
	p.AdminAccept = false
	p.Attended = false
}

// PendingRequestFilter は申請一覧の絞り込み条件。
type PendingRequestFilter struct {
	UserID     string
	DivisionID string
	VenueID    string
}

// VenueWithAssociation はユーザーの所属有無を付与した開催予定。
type VenueWithAssociation struct {
	Venue
	RequestID        string
	DivisionID       string
	IsUserAssociated bool
}

// UserVenues はユーザー視点で分類した開催予定の一覧。
type UserVenues struct {
	New      []VenueWithAssociation
	Pending  []VenueWithAssociation
	Accepted []VenueWithAssociation
	Rejected []VenueWithAssociation
}
