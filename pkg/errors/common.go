package errors

// 通用错误 (service 00)。
var (
	ErrBadRequest = Define(ServiceCommon, CategoryRequest, 0).
			Text("Bad request", "অনুরোধটি সঠিক নয়").Must()
	ErrInvalidParam = Define(ServiceCommon, CategoryRequest, 1).
			Text("Invalid parameter", "প্যারামিটার সঠিক নয়").Must()

	ErrUnauthorized = Define(ServiceCommon, CategoryAuth, 0).
			Text("Unauthorized", "প্রমাণীকরণ প্রয়োজন").Must()
	ErrInvalidToken = Define(ServiceCommon, CategoryAuth, 1).
			Text("Invalid token", "টোকেন সঠিক নয়").Must()
	ErrTokenExpired = Define(ServiceCommon, CategoryAuth, 2).
			Text("Token expired", "টোকেনের মেয়াদ শেষ").Must()
	ErrForbidden = Define(ServiceCommon, CategoryPermission, 0).
			Text("Forbidden", "অনুমতি নেই").Must()

	ErrNotFound = Define(ServiceCommon, CategoryResource, 0).
			Text("Resource not found", "খুঁজে পাওয়া যায়নি").Must()
	ErrAlreadyExists = Define(ServiceCommon, CategoryConflict, 1).
				Text("Resource already exists", "ইতিমধ্যে বিদ্যমান").Must()
	ErrTooManyRequests = Define(ServiceCommon, CategoryRateLimit, 0).
				Text("Too many requests", "অনেক বেশি অনুরোধ, কিছুক্ষণ পরে চেষ্টা করুন").Must()

	ErrInternal = Define(ServiceCommon, CategoryInternal, 0).
			Text("Internal server error", "সার্ভারের অভ্যন্তরীণ ত্রুটি").Must()
	ErrPanic = Define(ServiceCommon, CategoryInternal, 2).
			Text("Service panic", "সার্ভিসে অপ্রত্যাশিত ত্রুটি").Must()
)
