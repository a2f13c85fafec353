package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// User-facing messages. The platform UI is Arabic.
const (
	msgInvalidRequest  = "بيانات الطلب غير صالحة"
	msgInvalidPhone    = "رقم الهاتف غير صالح"
	msgRateLimited     = "عدد كبير جدًا من الطلبات، يرجى المحاولة لاحقًا"
	msgAlreadySent     = "تم إرسال رمز التحقق بالفعل، يرجى الانتظار قبل طلب رمز جديد"
	msgOTPNotFound     = "لم يتم العثور على رمز تحقق لهذا الرقم"
	msgOTPExpired      = "انتهت صلاحية رمز التحقق، يرجى طلب رمز جديد"
	msgTooManyAttempts = "تم تجاوز الحد الأقصى لمحاولات التحقق، يرجى طلب رمز جديد"
	msgInvalidOTP      = "رمز التحقق غير صحيح"
	msgDeliveryFailed  = "فشل إرسال رمز التحقق، يرجى المحاولة لاحقًا"
	msgServerError     = "حدث خطأ في الخادم، يرجى المحاولة لاحقًا"
	msgOTPSent         = "تم إرسال رمز التحقق بنجاح"
	msgPhoneVerified   = "تم التحقق من رقم الهاتف بنجاح"
	msgUnauthorized    = "غير مصرح"
	msgLoggedOut       = "تم تسجيل الخروج بنجاح"
	msgInvalidToken    = "رمز الجلسة غير صالح"
	msgTokenRevoked    = "تم إلغاء رمز الجلسة"
	msgUserNotFound    = "المستخدم غير موجود"
)

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
	// RemainingAttempts is set on a wrong code.
	RemainingAttempts *int `json:"remainingAttempts,omitempty"`
	// RetryAfter is in seconds and mirrors the Retry-After header.
	RetryAfter int `json:"retryAfter,omitempty"`
}

var validate = validator.New()

func respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, status int, code, message string) {
	respondWithJSON(w, status, ErrorResponse{Error: message, Code: code})
}

func respondRateLimited(w http.ResponseWriter, retryAfter int, code, message string) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	respondWithJSON(w, http.StatusTooManyRequests, ErrorResponse{
		Error:      message,
		Code:       code,
		RetryAfter: retryAfter,
	})
}

const maxBodyBytes = 16 << 10

// decode reads a JSON body into dst and validates it. It writes the 400
// response itself and reports false on failure.
func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	return decodeJSON(w, r, dst, false)
}

// decodeOptional is decode for endpoints where the body may be empty.
func decodeOptional(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	return decodeJSON(w, r, dst, true)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}, optional bool) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(dst)
	if optional && errors.Is(err, io.EOF) {
		return true
	}
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", msgInvalidRequest)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", msgInvalidRequest)
		return false
	}
	return true
}

// clientIP returns the socket address unless the peer is a trusted proxy.
// Behind trusted proxies it walks X-Forwarded-For from the right and takes
// the first hop that is not itself trusted, so entries a client prepends
// are never reached.
func clientIP(r *http.Request, trusted []*net.IPNet) string {
	remote := r.RemoteAddr
	if host, _, err := net.SplitHostPort(remote); err == nil {
		remote = host
	}
	if !isTrusted(remote, trusted) {
		return remote
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop != "" && !isTrusted(hop, trusted) {
				return hop
			}
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return remote
}

func isTrusted(addr string, trusted []*net.IPNet) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, n := range trusted {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
