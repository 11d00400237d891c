package restaurant

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBookingCodeRoundTrip(t *testing.T) {
	days := []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

	for _, day := range days {
		for hour := 0; hour <= 23; hour++ {
			code, err := EncodeBookingCode(day, hour)
			require.NoError(t, err)

			prefix, decodedHour, err := code.Decode()
			require.NoError(t, err)
			require.Equal(t, string(code[:3]), prefix)
			require.Equal(t, hour, decodedHour)
		}
	}
}

func TestEncodeBookingCode(t *testing.T) {
	code, err := EncodeBookingCode("Friday", 18)
	require.NoError(t, err)
	require.Equal(t, BookingCode("fri18"), code)

	_, err = EncodeBookingCode("Friday", 24)
	require.Error(t, err)
	_, err = EncodeBookingCode("Friday", -1)
	require.Error(t, err)
	_, err = EncodeBookingCode("Fr", 18)
	require.Error(t, err)
}

func TestDecodeBookingCode(t *testing.T) {
	// codes carrying a trailing end hour still decode by start hour
	prefix, hour, err := BookingCode("fri1819").Decode()
	require.NoError(t, err)
	require.Equal(t, "fri", prefix)
	require.Equal(t, 18, hour)

	_, _, err = BookingCode("fr1").Decode()
	require.Error(t, err)
	_, _, err = BookingCode("frixx").Decode()
	require.Error(t, err)
	_, _, err = BookingCode("fri99").Decode()
	require.Error(t, err)
}

func TestWindowString(t *testing.T) {
	require.Equal(t, "21:00-22:00", Window{StartHour: 21}.String())
	require.Equal(t, "09:00-10:00", Window{StartHour: 9}.String())
}
